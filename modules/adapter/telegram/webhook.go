package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/flemzord/tgbridge/internal/gateway"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// webhookReceiver handles updates pushed to POST /<bot_token>/. It
// implements gateway.WebhookHandler.
type webhookReceiver struct {
	secret   string
	dispatch func(ctx context.Context, raw json.RawMessage)
}

var _ gateway.WebhookHandler = (*webhookReceiver)(nil)

// HandleWebhook classifies and dispatches one update synchronously. Once
// the body parses, the update is acknowledged whatever the handler does,
// so Telegram never redelivers it.
func (w *webhookReceiver) HandleWebhook(ctx context.Context, _ string, body []byte, headers http.Header) error {
	if w.secret != "" {
		token := headers.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			return fmt.Errorf("telegram: invalid webhook secret token: %w", gateway.ErrUnauthorized)
		}
	}
	if !json.Valid(body) {
		return fmt.Errorf("telegram: webhook body is not JSON: %w", gateway.ErrMalformedPayload)
	}
	w.dispatch(ctx, json.RawMessage(body))
	return nil
}

// webhookURL is the address Telegram posts to: webhook_addr followed by
// the bot token path.
func webhookURL(addr, token string) string {
	return strings.TrimRight(addr, "/") + "/" + token + "/"
}
