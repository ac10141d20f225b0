// Package gateway is the embedded HTTP server: pushed updates, published
// media, health and Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/cron"
	"gopkg.in/yaml.v3"
)

const mediaSweepSpec = "@every 1m"

func init() {
	core.RegisterModule(&Gateway{})
}

// Gateway is the HTTP gateway module.
type Gateway struct {
	config     Config
	logger     *slog.Logger
	server     *http.Server
	listener   net.Listener
	metrics    *Metrics
	dispatcher *WebhookDispatcher
	media      *MediaStore
	sweeper    *cron.Scheduler
	startedAt  time.Time
}

var (
	_ core.Module       = (*Gateway)(nil)
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It publishes the dispatcher, the
// media store and the metrics registry for other modules.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.logger = ctx.Logger
	g.metrics = NewMetrics()
	g.dispatcher = NewWebhookDispatcher(g.logger, g.config.MaxBodyBytes)
	g.media = NewMediaStore()

	ctx.RegisterService(ServiceWebhookDispatcher, g.dispatcher)
	ctx.RegisterService(ServiceMedia, g.media)
	ctx.RegisterService(ServiceMetricsRegistry, g.metrics.Registry())
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return fmt.Errorf("gateway: invalid bind address %q: %w", g.config.Bind, err)
	}
	return nil
}

// Start implements core.Starter.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	g.listener = ln

	g.server = &http.Server{
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	g.sweeper = cron.NewScheduler(g.logger)
	err = g.sweeper.RegisterJob(&cron.SweepJob{
		Label:        "gateway.media",
		Sweep:        g.media.Sweep,
		Logger:       g.logger,
		ScheduleExpr: mediaSweepSpec,
	})
	if err == nil {
		err = g.sweeper.Start()
	}
	if err != nil {
		_ = ln.Close()
		return fmt.Errorf("gateway: scheduling media sweep: %w", err)
	}

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Addr returns the address the gateway listens on once started.
func (g *Gateway) Addr() string {
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

// Stop implements core.Stopper.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.sweeper != nil {
		_ = g.sweeper.Stop(ctx)
	}
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
