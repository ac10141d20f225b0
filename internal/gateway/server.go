package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(g.metrics.instrument)

	r.Get("/health", g.handleHealth())
	r.Get("/media/{id}", g.media.ServeHTTP)

	// Pushed updates. The source segment is the adapter's secret path.
	r.Post("/{source}/", g.dispatcher.ServeHTTP)

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth))
		}
		r.Get("/metrics", g.metrics.Handler().ServeHTTP)
	})

	return r
}
