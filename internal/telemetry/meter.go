package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"netwatch/internal/health"
)

// Meter wraps an OpenTelemetry MeterProvider and republishes the same
// ambient process-health gauges internal/metrics.Collector serves over
// /metrics, so a collector that only speaks OTLP metrics (rather than
// scraping Prometheus text) still sees this process's CPU/RSS.
type Meter struct {
	provider metric.MeterProvider
	shutdown func(context.Context) error
	mu       sync.Mutex
}

// NewMeter builds a Meter from cfg (the same Config shape Tracer uses).
// A disabled or "none" config yields a no-op meter that is always safe
// to call.
func NewMeter(ctx context.Context, cfg Config) (*Meter, error) {
	if !cfg.Enabled || cfg.ExporterType == ExporterNone || cfg.ExporterType == "" {
		return NoopMeter(), nil
	}

	reader, err := newMetricReader(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric reader: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes("",
		semconv.ServiceName("netwatch-"+cfg.Component),
		attribute.String("netwatch.component", cfg.Component),
		attribute.String("netwatch.instance_id", cfg.InstanceID),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	return &Meter{
		provider: provider,
		shutdown: provider.Shutdown,
	}, nil
}

func newMetricReader(ctx context.Context, cfg Config) (sdkmetric.Reader, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case ExporterOTLPGRPC:
		opts := []otlpmetricgrpc.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

// NoopMeter returns a Meter that discards every instrument, used when
// NETWATCH_OTEL_ENABLED is unset and as the always-safe default.
func NoopMeter() *Meter {
	return &Meter{
		provider: noop.NewMeterProvider(),
		shutdown: func(context.Context) error { return nil },
	}
}

// RegisterProcessHealthGauges registers observable gauges that read
// sampler's cached CPU%/RSS on every collection, mirroring the gauges
// internal/metrics.writeHealthMetrics publishes in Prometheus text.
func (m *Meter) RegisterProcessHealthGauges(sampler *health.Sampler) error {
	meter := m.provider.Meter("netwatch/health")

	cpu, err := meter.Float64ObservableGauge(
		"netwatch_process_cpu_percent",
		metric.WithDescription("This process's own CPU usage percentage"),
	)
	if err != nil {
		return fmt.Errorf("telemetry: register cpu gauge: %w", err)
	}

	rss, err := meter.Int64ObservableGauge(
		"netwatch_process_rss_bytes",
		metric.WithDescription("This process's own resident set size, in bytes"),
	)
	if err != nil {
		return fmt.Errorf("telemetry: register rss gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		sample := sampler.Last()
		o.ObserveFloat64(cpu, sample.CPUPercent)
		o.ObserveInt64(rss, int64(sample.RSSBytes))
		return nil
	}, cpu, rss)
	if err != nil {
		return fmt.Errorf("telemetry: register health callback: %w", err)
	}
	return nil
}

// Shutdown flushes and releases the underlying MeterProvider.
func (m *Meter) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown != nil {
		return m.shutdown(ctx)
	}
	return nil
}
