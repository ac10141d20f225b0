package telegram

import (
	"errors"
	"fmt"

	"github.com/flemzord/tgbridge/pkg/message"
)

// Sentinel errors for outbound operations.
var (
	// ErrNoChat is returned when an event carries no chat to answer in.
	ErrNoChat = errors.New("telegram: event has no chat")
	// ErrEmptyMessage is returned when sending a message without segments.
	ErrEmptyMessage = errors.New("telegram: empty message")
	// ErrUnknownUser is returned when a username was never seen.
	ErrUnknownUser = errors.New("telegram: unknown username")
)

// ConfigError reports an invalid adapter configuration. It is fatal at
// startup.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "telegram: config: " + e.Msg }

// NetworkError reports a transport failure or an unexpected HTTP status.
type NetworkError struct {
	Msg string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telegram: network error: %s: %v", e.Msg, e.Err)
	}
	return "telegram: network error: " + e.Msg
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ActionFailed is an error reported by the Bot API itself (ok=false).
type ActionFailed struct {
	Code        int
	Description string
	// RetryAfter is set on flood-control errors, in seconds.
	RetryAfter int
}

func (e *ActionFailed) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram: action failed: %d %s (retry after %ds)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram: action failed: %d %s", e.Code, e.Description)
}

// NotAcceptable reports an inbound update the adapter cannot classify.
type NotAcceptable struct {
	Reason string
	Err    error
}

func (e *NotAcceptable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("telegram: update not acceptable: %s: %v", e.Reason, e.Err)
	}
	return "telegram: update not acceptable: " + e.Reason
}

func (e *NotAcceptable) Unwrap() error { return e.Err }

// MessageNotSupport reports a segment that cannot be sent in context.
type MessageNotSupport struct {
	Type message.SegmentType
}

func (e *MessageNotSupport) Error() string {
	return fmt.Sprintf("telegram: segment %q not supported here", e.Type)
}

// MenuHandleFailed wraps an error returned by a menu item handler.
type MenuHandleFailed struct {
	Item string
	Err  error
}

func (e *MenuHandleFailed) Error() string {
	return fmt.Sprintf("telegram: menu item %q failed: %v", e.Item, e.Err)
}

func (e *MenuHandleFailed) Unwrap() error { return e.Err }
