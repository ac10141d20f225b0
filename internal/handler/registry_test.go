package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/pkg/message"
	"gopkg.in/yaml.v3"
)

type fakeEvent struct {
	typ, text, user string
	toMe            bool
}

func (e fakeEvent) Type() string             { return e.typ }
func (e fakeEvent) Name() string             { return e.typ + ".private" }
func (e fakeEvent) Description() string      { return e.text }
func (e fakeEvent) Plaintext() string        { return e.text }
func (e fakeEvent) Message() message.Message { return message.FromText(e.text) }
func (e fakeEvent) UserID() string           { return e.user }
func (e fakeEvent) SessionID() string        { return e.user + "_" + e.user }
func (e fakeEvent) IsToMe() bool             { return e.toMe }

type fakeBot struct {
	replies []string
}

func (b *fakeBot) Platform() string { return "fake" }
func (b *fakeBot) SelfID() string   { return "1" }
func (b *fakeBot) CallAPI(context.Context, string, map[string]any) (json.RawMessage, error) {
	return nil, nil
}
func (b *fakeBot) Reply(_ context.Context, _ core.Event, msg message.Message) error {
	b.replies = append(b.replies, msg.Plaintext())
	return nil
}

func TestRegistry_OrderAndBlocking(t *testing.T) {
	r := NewRegistry(nil)
	var calls []string
	record := func(name string) Func {
		return func(context.Context, core.Bot, core.Event) error {
			calls = append(calls, name)
			return nil
		}
	}
	r.On("first", ByType("message"), record("first"))
	r.OnBlocking("ping", Command("/ping"), record("ping"))
	r.On("after", ByType("message"), record("after"))

	if err := r.HandleEvent(context.Background(), &fakeBot{}, fakeEvent{typ: "message", text: "/ping now"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if strings.Join(calls, ",") != "first,ping" {
		t.Errorf("calls = %v", calls)
	}

	calls = nil
	_ = r.HandleEvent(context.Background(), &fakeBot{}, fakeEvent{typ: "message", text: "/pingpong"})
	if strings.Join(calls, ",") != "first,after" {
		t.Errorf("calls = %v, /pingpong must not match /ping", calls)
	}
}

func TestRegistry_CollectsErrorsAndPanics(t *testing.T) {
	r := NewRegistry(nil)
	boom := errors.New("boom")
	r.On("fails", ByType("notice"), func(context.Context, core.Bot, core.Event) error { return boom })
	r.On("panics", ByType("notice"), func(context.Context, core.Bot, core.Event) error { panic("oops") })

	err := r.HandleEvent(context.Background(), &fakeBot{}, fakeEvent{typ: "notice"})
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if err == nil || !strings.Contains(err.Error(), "panic: oops") {
		t.Errorf("err = %v, want recovered panic", err)
	}
}

func TestRegistry_AllowList(t *testing.T) {
	r := NewRegistry(NewAllowList([]string{" 42 "}))
	ran := false
	r.On("any", ByType("message"), func(context.Context, core.Bot, core.Event) error { ran = true; return nil })

	err := r.HandleEvent(context.Background(), &fakeBot{}, fakeEvent{typ: "message", user: "7"})
	if !errors.Is(err, ErrDenied) {
		t.Errorf("err = %v, want ErrDenied", err)
	}
	if ran {
		t.Error("handler ran for a denied user")
	}

	if err := r.HandleEvent(context.Background(), &fakeBot{}, fakeEvent{typ: "message", user: "42"}); err != nil {
		t.Errorf("allowed user: %v", err)
	}
	if !ran {
		t.Error("handler did not run for an allowed user")
	}
}

func TestAllowList_EmptyDenies(t *testing.T) {
	if NewAllowList(nil).IsAllowed(fakeEvent{user: "1"}) {
		t.Error("empty allow-list should deny")
	}
}

func TestBuiltin_Module(t *testing.T) {
	var doc yaml.Node
	cfg := "commands:\n  /ping: pong\necho: true\nlog_events: true\n"
	if err := yaml.Unmarshal([]byte(cfg), &doc); err != nil {
		t.Fatal(err)
	}

	b := &Builtin{}
	if err := b.Configure(doc.Content[0]); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	appCtx := core.NewAppContext(slog.New(slog.NewTextHandler(io.Discard, nil)), t.TempDir(), core.DriverClient)
	if err := b.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	h, ok := core.LookupService[core.EventHandler](appCtx, core.ServiceEventHandler)
	if !ok {
		t.Fatal("events.handler service not registered")
	}

	bot := &fakeBot{}
	ctx := context.Background()
	if err := h.HandleEvent(ctx, bot, fakeEvent{typ: "message", text: "/ping", toMe: true}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if err := h.HandleEvent(ctx, bot, fakeEvent{typ: "message", text: "hello", toMe: true}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if err := h.HandleEvent(ctx, bot, fakeEvent{typ: "message", text: "not for me"}); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if strings.Join(bot.replies, "|") != "pong|hello" {
		t.Errorf("replies = %v", bot.replies)
	}
}

func TestReply_WithoutReplier(t *testing.T) {
	type plainBot struct{ core.Bot }
	err := Reply(context.Background(), plainBot{}, fakeEvent{}, message.FromText("x"))
	if !errors.Is(err, ErrNoReplier) {
		t.Errorf("err = %v, want ErrNoReplier", err)
	}
}
