package handler

import "errors"

var (
	// ErrDenied is returned when the allow-list rejects the event's user.
	ErrDenied = errors.New("handler: user not allowed")

	// ErrNoReplier is returned when the bot cannot send replies.
	ErrNoReplier = errors.New("handler: bot cannot reply")
)
