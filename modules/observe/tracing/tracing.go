// Package tracing exports bridge spans to an OTLP/HTTP collector. The
// module owns the global tracer provider: Start installs a sampling
// provider with the service resource, Stop flushes and shuts it down.
// Without this module the default no-op provider keeps instrumentation
// free.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/telegate/telegate/internal/core"
	"github.com/telegate/telegate/internal/version"
)

func init() {
	core.RegisterModule(&Tracing{})
}

// Compile-time interface guards.
var (
	_ core.Configurable = (*Tracing)(nil)
	_ core.Provisioner  = (*Tracing)(nil)
	_ core.Validator    = (*Tracing)(nil)
	_ core.Starter      = (*Tracing)(nil)
	_ core.Stopper      = (*Tracing)(nil)
)

// Tracing is the trace export module.
type Tracing struct {
	config   Config
	provider *sdktrace.TracerProvider
	logger   *slog.Logger
}

// ModuleInfo implements core.Module.
func (t *Tracing) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "observe.tracing",
		New: func() core.Module { return &Tracing{} },
	}
}

// Configure implements core.Configurable.
func (t *Tracing) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("tracing: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (t *Tracing) Provision(ctx *core.AppContext) error {
	t.config.defaults()
	t.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (t *Tracing) Validate() error {
	return t.config.validate()
}

// Start implements core.Starter. The exporter does not dial here; a dead
// collector surfaces later as export errors on the error handler, never
// as a failed boot.
func (t *Tracing) Start() error {
	logger := t.logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(t.config.Endpoint),
	}
	if t.config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(t.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.config.Headers))
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("tracing: create exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", t.config.ServiceName),
		attribute.String("service.version", version.Version),
	))
	if err != nil {
		return fmt.Errorf("tracing: build resource: %w", err)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(t.config.SampleRatio))),
	)

	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Warn("tracing: export error", "error", err)
	}))

	logger.Info("tracing started",
		"endpoint", t.config.Endpoint,
		"sample_ratio", t.config.SampleRatio,
		"service", t.config.ServiceName,
	)
	return nil
}

// Stop implements core.Stopper. Shutdown flushes buffered spans, so a
// collector that is down at shutdown surfaces here as an error.
func (t *Tracing) Stop(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracing: shutdown: %w", err)
	}
	return nil
}
