package handler

import (
	"context"
	"log/slog"
	"slices"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/pkg/message"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Builtin{})
}

// BuiltinConfig configures the handler.builtin module.
type BuiltinConfig struct {
	// AllowUsers restricts handling to these user IDs. Empty admits everyone.
	AllowUsers []string `yaml:"allow_users"`
	// Commands maps a command such as "/ping" to a fixed text reply.
	Commands map[string]string `yaml:"commands"`
	// Echo replies to messages addressed to the bot with their own content.
	Echo bool `yaml:"echo"`
	// LogEvents logs the description of every event.
	LogEvents bool `yaml:"log_events"`
}

// Builtin provides the host event handler: fixed command replies, an
// optional echo and event logging. It registers itself as the
// events.handler service.
type Builtin struct {
	config   BuiltinConfig
	logger   *slog.Logger
	registry *Registry
}

var (
	_ core.Module       = (*Builtin)(nil)
	_ core.Configurable = (*Builtin)(nil)
	_ core.Provisioner  = (*Builtin)(nil)
)

// ModuleInfo implements core.Module.
func (b *Builtin) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "handler.builtin",
		New: func() core.Module { return &Builtin{} },
	}
}

// Configure implements core.Configurable.
func (b *Builtin) Configure(node *yaml.Node) error {
	return node.Decode(&b.config)
}

// Provision implements core.Provisioner.
func (b *Builtin) Provision(ctx *core.AppContext) error {
	b.logger = ctx.Logger

	var allow *AllowList
	if len(b.config.AllowUsers) > 0 {
		allow = NewAllowList(b.config.AllowUsers)
	}
	b.registry = NewRegistry(allow)

	if b.config.LogEvents {
		b.registry.On("log", func(core.Event) bool { return true }, b.logEvent)
	}

	cmds := make([]string, 0, len(b.config.Commands))
	for cmd := range b.config.Commands {
		cmds = append(cmds, cmd)
	}
	slices.Sort(cmds)
	for _, cmd := range cmds {
		reply := b.config.Commands[cmd]
		b.registry.OnBlocking(cmd, Command(cmd), func(ctx context.Context, bot core.Bot, ev core.Event) error {
			return Reply(ctx, bot, ev, message.FromText(reply))
		})
	}

	if b.config.Echo {
		b.registry.OnBlocking("echo", All(ByType("message"), ToMe()), func(ctx context.Context, bot core.Bot, ev core.Event) error {
			return Reply(ctx, bot, ev, ev.Message())
		})
	}

	ctx.RegisterService(core.ServiceEventHandler, b.registry)
	return nil
}

// Registry returns the module's handler registry so embedding programs can
// add their own handlers.
func (b *Builtin) Registry() *Registry { return b.registry }

func (b *Builtin) logEvent(_ context.Context, bot core.Bot, ev core.Event) error {
	b.logger.Info("event",
		"platform", bot.Platform(),
		"name", ev.Name(),
		"session", ev.SessionID(),
		"description", ev.Description(),
	)
	return nil
}
