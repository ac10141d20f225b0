package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// ServiceWebhookDispatcher is the service name of the *WebhookDispatcher.
const ServiceWebhookDispatcher = "gateway.webhook_dispatcher"

var (
	// ErrMalformedPayload tells the dispatcher to answer 400.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnauthorized tells the dispatcher to answer 401.
	ErrUnauthorized = errors.New("unauthorized")
)

// WebhookHandler processes a pushed payload. Returning nil acknowledges it.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, source string, body []byte, headers http.Header) error
}

// WebhookDispatcher routes POST /{source}/ to the handler registered for
// source. Adapters register under an unguessable source (the bot token).
type WebhookDispatcher struct {
	mu           sync.RWMutex
	handlers     map[string]WebhookHandler
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewWebhookDispatcher creates a ready-to-use dispatcher.
func NewWebhookDispatcher(logger *slog.Logger, maxBodyBytes int64) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers:     make(map[string]WebhookHandler),
		logger:       logger,
		maxBodyBytes: maxBodyBytes,
	}
}

// Register binds h to source, replacing any earlier handler.
func (d *WebhookDispatcher) Register(source string, h WebhookHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[source] = h
}

// Unregister removes the handler bound to source.
func (d *WebhookDispatcher) Unregister(source string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, source)
}

// Len returns the number of registered sources.
func (d *WebhookDispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// ServeHTTP implements http.Handler.
func (d *WebhookDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	source := chi.URLParam(r, "source")

	d.mu.RLock()
	h, ok := d.handlers[source]
	d.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, d.maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusRequestEntityTooLarge)
		return
	}

	if err := h.HandleWebhook(r.Context(), source, body, r.Header); err != nil {
		switch {
		case errors.Is(err, ErrMalformedPayload):
			http.Error(w, "bad request", http.StatusBadRequest)
		case errors.Is(err, ErrUnauthorized):
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		default:
			d.logger.Error("webhook handler failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true}`))
}
