package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/cron"
	"github.com/flemzord/tgbridge/internal/gateway"
	"github.com/flemzord/tgbridge/internal/security"
	"github.com/flemzord/tgbridge/internal/telemetry"
)

const (
	moduleID       = "adapter.telegram"
	cacheSweepSpec = "@every 1m"
	startupTimeout = time.Minute
)

func init() {
	core.RegisterModule(&Adapter{})
}

// Compile-time interface guards.
var (
	_ core.Module       = (*Adapter)(nil)
	_ core.Configurable = (*Adapter)(nil)
	_ core.Provisioner  = (*Adapter)(nil)
	_ core.Validator    = (*Adapter)(nil)
	_ core.Starter      = (*Adapter)(nil)
	_ core.Stopper      = (*Adapter)(nil)
)

// Adapter bridges the Telegram Bot API to the host event handler. With
// the server driver updates are pushed to a webhook on the gateway;
// otherwise they are polled.
type Adapter struct {
	config Config
	logger *slog.Logger
	appCtx *core.AppContext
	server bool

	httpClient *Client
	metrics    *Metrics
	tracer     trace.Tracer
	handler    core.EventHandler
	classifier *Classifier
	bot        *Bot
	users      UserStore
	sweeper    *cron.Scheduler

	// Set during Start() depending on the driver.
	poller     *Poller
	dispatcher *gateway.WebhookDispatcher

	// runCtx bounds dispatched handlers; cancelled by Stop.
	runCtx    context.Context
	cancelRun context.CancelFunc
}

// ModuleInfo implements core.Module.
func (a *Adapter) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  moduleID,
		New: func() core.Module { return &Adapter{} },
	}
}

// Configure implements core.Configurable.
func (a *Adapter) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It registers the token with the
// log redactor so it never appears in output.
func (a *Adapter) Provision(ctx *core.AppContext) error {
	a.appCtx = ctx
	a.logger = ctx.Logger
	a.server = ctx.Driver == core.DriverServer

	if r, ok := core.LookupService[*security.Redactor](ctx, security.ServiceRedactor); ok {
		r.AddLiteral(a.config.BotToken)
		if a.config.RedisPassword != "" {
			r.AddLiteral(a.config.RedisPassword)
		}
		if a.config.WebhookSecret != "" {
			r.AddLiteral(a.config.WebhookSecret)
		}
	}
	return nil
}

// Validate implements core.Validator. Configuration errors surface here,
// before any network activity.
func (a *Adapter) Validate() error {
	return a.config.validate(a.server)
}

// Start implements core.Starter. It drops any previous webhook, checks the
// token with getMe, then starts receiving updates.
func (a *Adapter) Start() error {
	hc, err := newHTTPClient(a.config.BotAPIProxy)
	if err != nil {
		return err
	}

	tp := otel.GetTracerProvider()
	if p, ok := core.LookupService[trace.TracerProvider](a.appCtx, telemetry.ServiceTracerProvider); ok {
		tp = p
	}
	a.tracer = tp.Tracer(tracerName)

	a.metrics = NewMetrics()
	if reg, ok := core.LookupService[prometheus.Registerer](a.appCtx, gateway.ServiceMetricsRegistry); ok {
		if err := a.metrics.Register(reg); err != nil {
			return fmt.Errorf("telegram: registering metrics: %w", err)
		}
	} else {
		a.metrics = nil
	}

	longPoll := time.Duration(a.config.longPollingTimeout()) * time.Second
	a.httpClient = NewClient(a.config.BotToken, a.config.BotAPIServerAddr,
		WithHTTPClient(hc),
		WithAPITimeout(a.config.APITimeout),
		WithLongPollTimeout(longPoll),
		WithTracerProvider(tp),
		WithMetrics(a.metrics),
	)

	h, ok := core.LookupService[core.EventHandler](a.appCtx, core.ServiceEventHandler)
	if !ok {
		return fmt.Errorf("telegram: no %s service (is a handler module loaded?)", core.ServiceEventHandler)
	}
	a.handler = h

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	users, err := a.openUserStore(ctx)
	if err != nil {
		return err
	}
	a.users = users

	if err := a.httpClient.DeleteWebhook(ctx); err != nil {
		a.closeUsers()
		return fmt.Errorf("telegram: deleteWebhook: %w", err)
	}
	self, err := a.httpClient.GetMe(ctx)
	if err != nil {
		a.closeUsers()
		return fmt.Errorf("telegram: getMe failed (check bot_token): %w", err)
	}
	a.logger.Info("telegram bot authenticated", "id", self.ID, "username", self.Username)

	a.classifier = NewClassifier(*self)
	a.bot = a.newBot(*self)
	a.runCtx, a.cancelRun = context.WithCancel(context.Background())

	if err := a.startSweeper(); err != nil {
		a.closeUsers()
		return err
	}

	if a.server {
		err = a.startWebhook(ctx)
	} else {
		err = a.startPolling()
	}
	if err != nil {
		_ = a.sweeper.Stop(ctx)
		a.cancelRun()
		a.closeUsers()
		return err
	}
	return nil
}

func (a *Adapter) newBot(self User) *Bot {
	c := composer{
		parseMode: a.config.ParseMode,
		mediaTTL:  a.config.MediaTTL,
		users:     a.users,
	}
	if a.config.MountMedia {
		if store, ok := core.LookupService[*gateway.MediaStore](a.appCtx, gateway.ServiceMedia); ok {
			c.media = store
			c.mediaBase = a.config.MediaPublicAddr
		} else {
			a.logger.Warn("mount_media is set but the gateway is not loaded; local files will be uploaded")
		}
	}
	return &Bot{
		client:   a.httpClient,
		self:     self,
		caches:   NewCaches(),
		users:    a.users,
		menus:    NewMenuManager(),
		composer: c,
		logger:   a.logger,
	}
}

func (a *Adapter) openUserStore(ctx context.Context) (UserStore, error) {
	if a.config.RedisAddr != "" {
		return NewRedisUserStore(ctx, a.config.RedisAddr, a.config.RedisPassword, a.config.RedisDB)
	}
	path := a.config.UsernameDB
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.appCtx.DataDir, path)
	}
	return OpenSQLiteUserStore(ctx, path)
}

func (a *Adapter) startSweeper() error {
	a.sweeper = cron.NewScheduler(a.logger)
	jobs := []*cron.SweepJob{
		{Label: "telegram.caches", Sweep: a.bot.caches.Sweep, Logger: a.logger, ScheduleExpr: cacheSweepSpec},
		{Label: "telegram.menus", Sweep: a.bot.menus.Sweep, Logger: a.logger, ScheduleExpr: cacheSweepSpec},
	}
	for _, j := range jobs {
		if err := a.sweeper.RegisterJob(j); err != nil {
			return fmt.Errorf("telegram: scheduling cache sweep: %w", err)
		}
	}
	return a.sweeper.Start()
}

func (a *Adapter) startWebhook(ctx context.Context) error {
	d, ok := core.LookupService[*gateway.WebhookDispatcher](a.appCtx, gateway.ServiceWebhookDispatcher)
	if !ok {
		return fmt.Errorf("telegram: %s service not found (is gateway.http loaded?)", gateway.ServiceWebhookDispatcher)
	}
	if a.config.WebhookSecret == "" {
		a.logger.Warn("webhook running without webhook_secret; anyone who learns the URL can post updates")
	}

	d.Register(a.config.BotToken, &webhookReceiver{
		secret:   a.config.WebhookSecret,
		dispatch: a.dispatch,
	})
	a.dispatcher = d

	if err := a.httpClient.SetWebhook(ctx, SetWebhookRequest{
		URL:            webhookURL(a.config.WebhookAddr, a.config.BotToken),
		SecretToken:    a.config.WebhookSecret,
		AllowedUpdates: a.config.AllowedUpdates,
	}); err != nil {
		d.Unregister(a.config.BotToken)
		return fmt.Errorf("telegram: setWebhook: %w", err)
	}
	a.logger.Info("telegram webhook registered", "addr", a.config.WebhookAddr)
	return nil
}

func (a *Adapter) startPolling() error {
	a.poller = NewPoller(a.httpClient, a.dispatch, a.logger, PollerConfig{
		Interval:        time.Duration(a.config.pollingInterval()) * time.Second,
		LongPollTimeout: time.Duration(a.config.longPollingTimeout()) * time.Second,
		AllowedUpdates:  a.config.AllowedUpdates,
		ErrorPause:      a.config.ErrorPause,
	}, a.metrics)
	return a.poller.Start(a.runCtx)
}

// Stop implements core.Stopper. It waits for the polling loop; handlers
// already dispatched are cancelled, not awaited.
func (a *Adapter) Stop(ctx context.Context) error {
	a.logger.Info("telegram adapter stopping")

	var errs []error
	if a.poller != nil {
		a.poller.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Unregister(a.config.BotToken)
		if err := a.httpClient.DeleteWebhook(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telegram: deleteWebhook: %w", err))
		}
	}
	if a.cancelRun != nil {
		a.cancelRun()
	}
	if a.sweeper != nil {
		_ = a.sweeper.Stop(ctx)
	}
	if a.users != nil {
		if err := a.users.Close(); err != nil {
			errs = append(errs, fmt.Errorf("telegram: closing user store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *Adapter) closeUsers() {
	if a.users != nil {
		_ = a.users.Close()
	}
}

// Bot returns the bot handle once started.
func (a *Adapter) Bot() *Bot { return a.bot }

// dispatch classifies one raw update and hands it to the host. Nothing
// escapes, panics included: failures are logged with the payload and the
// update counts as delivered.
func (a *Adapter) dispatch(ctx context.Context, raw json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			a.metrics.observeHandlerError()
			a.logger.Error("update dispatch panicked",
				"panic", r,
				"stack", string(debug.Stack()),
				"raw", string(raw),
			)
		}
	}()

	ev, ok, err := a.classifier.Classify(raw)
	if err != nil {
		a.metrics.observeUpdate("rejected")
		a.logger.Warn("update not acceptable", "error", err, "raw", string(raw))
		return
	}
	if !ok {
		a.metrics.observeUpdate("discarded")
		return
	}
	a.metrics.observeUpdate("accepted")

	ctx, span := a.tracer.Start(ctx, "telegram.dispatch", trace.WithAttributes(
		attribute.Int64("telegram.update_id", ev.UpdateID),
		attribute.String("event.name", ev.Name()),
		attribute.String("event.session", ev.SessionID()),
	))
	defer span.End()

	a.bot.observe(ctx, ev)
	a.logger.Debug("event received", "update_id", ev.UpdateID, "description", ev.Description())

	handled, err := a.bot.menus.Handle(ctx, a.bot, ev)
	if handled {
		if ackErr := a.bot.AnswerCallbackQuery(ctx, ev.CallbackQuery.ID, "", false); ackErr != nil {
			a.logger.Warn("answering callback query failed", "error", ackErr)
		}
	}
	if !handled {
		err = a.handler.HandleEvent(ctx, a.bot, ev)
	}
	if err != nil {
		a.metrics.observeHandlerError()
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
		a.logger.Error("event handler failed",
			"update_id", ev.UpdateID,
			"event", ev.Name(),
			"error", err,
			"raw", string(raw),
		)
	}
}
