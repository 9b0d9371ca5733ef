// Package telemetry provides OpenTelemetry tracing and metrics
// integration for NetWatch, with a stdout exporter by default and OTLP
// (gRPC or HTTP) when an endpoint is configured, per SPEC_FULL.md §4.7.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ExporterType selects which span exporter a Tracer uses.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPGRPC ExporterType = "otlp-grpc"
	ExporterOTLPHTTP ExporterType = "otlp-http"
)

// Config configures a Tracer. Component is one of "agent", "rack",
// "dc" and is attached as a resource attribute to every span.
type Config struct {
	Enabled      bool
	Component    string
	InstanceID   string
	ExporterType ExporterType
	OTLPEndpoint string
	OTLPInsecure bool
}

// Tracer wraps an OpenTelemetry TracerProvider with the single span
// helper the ingest and analysis hot paths need.
type Tracer struct {
	provider trace.TracerProvider
	tracer   trace.Tracer
	shutdown func(context.Context) error
	mu       sync.Mutex
}

// NewTracer builds a Tracer from cfg. A disabled or "none" config
// yields a no-op tracer that is always safe to call.
func NewTracer(ctx context.Context, cfg Config) (*Tracer, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone || cfg.ExporterType == "" {
		return NoopTracer(), nil
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create span exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("",
		semconv.ServiceName("netwatch-"+cfg.Component),
		attribute.String("netwatch.component", cfg.Component),
		attribute.String("netwatch.instance_id", cfg.InstanceID),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer("netwatch/" + cfg.Component),
		shutdown: provider.Shutdown,
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case ExporterOTLPHTTP:
		opts := []otlptracehttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// NoopTracer returns a Tracer that discards every span, used when
// NETWATCH_OTEL_ENABLED is unset and as the always-safe default.
func NoopTracer() *Tracer {
	provider := noop.NewTracerProvider()
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer("netwatch"),
		shutdown: func(context.Context) error { return nil },
	}
}

// StartSpan starts a span named name and returns a context carrying it
// plus a closure that ends it. This is the shape internal/rack.Tracer
// and internal/dc expect, so those packages never import the OTel SDK
// directly.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

// Propagator returns the composite trace-context/baggage propagator
// used when a component needs to carry span context across a wire hop.
func (t *Tracer) Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
}

// Shutdown flushes and releases the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}
