// Package telemetry installs the OpenTelemetry tracer provider that the
// adapters' spans are exported through.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/tgbridge/internal/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"gopkg.in/yaml.v3"
)

// ServiceTracerProvider is the service name of the installed
// trace.TracerProvider.
const ServiceTracerProvider = "telemetry.tracer_provider"

func init() {
	core.RegisterModule(&Telemetry{})
}

// Config controls trace export.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is host:port of an OTLP/HTTP collector. Empty falls back to
	// the OTEL_EXPORTER_OTLP_* environment variables.
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c *Config) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = "tgbridge"
	}
	if c.SampleRatio <= 0 {
		c.SampleRatio = 1
	}
}

func (c *Config) validate() error {
	if c.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample_ratio %v is above 1", c.SampleRatio)
	}
	return nil
}

// Telemetry is the telemetry.otel module.
type Telemetry struct {
	config   Config
	appCtx   *core.AppContext
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

var (
	_ core.Module       = (*Telemetry)(nil)
	_ core.Configurable = (*Telemetry)(nil)
	_ core.Provisioner  = (*Telemetry)(nil)
	_ core.Validator    = (*Telemetry)(nil)
	_ core.Starter      = (*Telemetry)(nil)
	_ core.Stopper      = (*Telemetry)(nil)
)

// ModuleInfo implements core.Module.
func (t *Telemetry) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry.otel",
		New: func() core.Module { return &Telemetry{} },
	}
}

// Configure implements core.Configurable.
func (t *Telemetry) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return err
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (t *Telemetry) Provision(ctx *core.AppContext) error {
	t.appCtx = ctx
	t.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (t *Telemetry) Validate() error {
	return t.config.validate()
}

// Start builds the exporter and installs the global tracer provider.
func (t *Telemetry) Start() error {
	if !t.config.Enabled {
		t.logger.Debug("trace export disabled")
		return nil
	}

	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, t.config)
	if err != nil {
		return err
	}
	t.provider = tp
	otel.SetTracerProvider(tp)
	t.appCtx.RegisterService(ServiceTracerProvider, tp)
	t.logger.Info("trace export enabled", "endpoint", t.config.Endpoint, "service", t.config.ServiceName)
	return nil
}

// Stop flushes pending spans.
func (t *Telemetry) Stop(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return errors.Join(t.provider.ForceFlush(ctx), t.provider.Shutdown(ctx))
}

// NewTracerProvider returns a batching provider exporting over OTLP/HTTP.
func NewTracerProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	), nil
}
