package core

import (
	"context"
	"encoding/json"

	"github.com/flemzord/tgbridge/pkg/message"
)

// ServiceEventHandler is the service name under which the host registers
// its EventHandler.
const ServiceEventHandler = "events.handler"

// Event is the platform-neutral view of an inbound event that adapters
// hand to the host.
type Event interface {
	// Type is the coarse category: "message", "notice" or "callback_query".
	Type() string
	// Name is the fine-grained name, e.g. "message.private".
	Name() string
	Description() string
	Plaintext() string
	Message() message.Message
	UserID() string
	SessionID() string
	IsToMe() bool
}

// Bot is the platform-neutral handle an adapter passes along with each event.
type Bot interface {
	Platform() string
	SelfID() string
	CallAPI(ctx context.Context, method string, params map[string]any) (json.RawMessage, error)
}

// EventHandler receives classified events from adapters.
type EventHandler interface {
	HandleEvent(ctx context.Context, bot Bot, ev Event) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, bot Bot, ev Event) error

// HandleEvent calls f.
func (f EventHandlerFunc) HandleEvent(ctx context.Context, bot Bot, ev Event) error {
	return f(ctx, bot, ev)
}
