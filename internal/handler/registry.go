// Package handler is the host side of event dispatch: a registry of
// matchers and handler functions that adapters deliver events to.
package handler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/pkg/message"
)

// Func handles one event.
type Func func(ctx context.Context, bot core.Bot, ev core.Event) error

// Matcher selects the events a Func runs for.
type Matcher func(ev core.Event) bool

// Replier is implemented by bots able to answer an event in place.
type Replier interface {
	Reply(ctx context.Context, ev core.Event, msg message.Message) error
}

type route struct {
	name  string
	match Matcher
	fn    Func
	block bool
}

// Registry runs the handlers whose matcher accepts an event, in
// registration order. A blocking handler that matched stops the chain.
type Registry struct {
	mu     sync.RWMutex
	routes []route
	allow  *AllowList
}

var _ core.EventHandler = (*Registry)(nil)

// NewRegistry creates an empty registry. A nil allow-list admits everyone.
func NewRegistry(allow *AllowList) *Registry {
	return &Registry{allow: allow}
}

// On adds a handler that lets later handlers run too.
func (r *Registry) On(name string, match Matcher, fn Func) {
	r.add(route{name: name, match: match, fn: fn})
}

// OnBlocking adds a handler that stops the chain when it matches.
func (r *Registry) OnBlocking(name string, match Matcher, fn Func) {
	r.add(route{name: name, match: match, fn: fn, block: true})
}

func (r *Registry) add(rt route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, rt)
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}

// HandleEvent implements core.EventHandler. Handler errors and panics are
// collected and returned joined.
func (r *Registry) HandleEvent(ctx context.Context, bot core.Bot, ev core.Event) error {
	if r.allow != nil && !r.allow.IsAllowed(ev) {
		return fmt.Errorf("%w: %s", ErrDenied, ev.UserID())
	}

	r.mu.RLock()
	routes := make([]route, len(r.routes))
	copy(routes, r.routes)
	r.mu.RUnlock()

	var errs []error
	for _, rt := range routes {
		if !rt.match(ev) {
			continue
		}
		if err := runSafe(ctx, rt, bot, ev); err != nil {
			errs = append(errs, fmt.Errorf("handler %s: %w", rt.name, err))
		}
		if rt.block {
			break
		}
	}
	return errors.Join(errs...)
}

func runSafe(ctx context.Context, rt route, bot core.Bot, ev core.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
	}()
	return rt.fn(ctx, bot, ev)
}

// Reply answers ev through bot when the bot supports it.
func Reply(ctx context.Context, bot core.Bot, ev core.Event, msg message.Message) error {
	r, ok := bot.(Replier)
	if !ok {
		return ErrNoReplier
	}
	return r.Reply(ctx, ev, msg)
}

// ByType matches events of the given coarse type.
func ByType(typ string) Matcher {
	return func(ev core.Event) bool { return ev.Type() == typ }
}

// Command matches message events whose text starts with cmd followed by
// the end of the text or a space.
func Command(cmd string) Matcher {
	return func(ev core.Event) bool {
		if ev.Type() != "message" {
			return false
		}
		text := strings.TrimSpace(ev.Plaintext())
		rest, ok := strings.CutPrefix(text, cmd)
		return ok && (rest == "" || rest[0] == ' ')
	}
}

// ToMe matches events addressed to the bot.
func ToMe() Matcher {
	return func(ev core.Event) bool { return ev.IsToMe() }
}

// All matches when every matcher does.
func All(ms ...Matcher) Matcher {
	return func(ev core.Event) bool {
		for _, m := range ms {
			if !m(ev) {
				return false
			}
		}
		return true
	}
}
