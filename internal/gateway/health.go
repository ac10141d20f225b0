package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Webhooks int    `json:"webhooks"`
	Media    int    `json:"media"`
}

func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{
			Status:   "ok",
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).String(),
			Webhooks: g.dispatcher.Len(),
			Media:    g.media.Len(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
