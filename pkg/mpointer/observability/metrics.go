package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records registry metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordAllocation records a new tracked allocation.
	RecordAllocation(ctx context.Context, registry string)

	// RecordRelease records a dropped reference. reclaimable is true when it
	// was the last reference.
	RecordRelease(ctx context.Context, registry string, reclaimable bool)

	// RecordStale records an identity-guarded operation that did not match.
	RecordStale(ctx context.Context, registry, op string)

	// RecordFree records allocations freed by the registry.
	RecordFree(ctx context.Context, registry string, n int)

	// RecordSweep records a sweep pass.
	RecordSweep(ctx context.Context, registry string, scanned, reclaimed int, duration time.Duration)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	allocations  metric.Int64Counter
	releases     metric.Int64Counter
	staleOps     metric.Int64Counter
	reclaimed    metric.Int64Counter
	live         metric.Int64UpDownCounter
	sweeps       metric.Int64Counter
	sweepLatency metric.Float64Histogram
	sweepScanned metric.Int64Histogram
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("mpointer")

	allocations, err := meter.Int64Counter("mpointer.allocations",
		metric.WithDescription("Number of allocations registered"),
	)
	if err != nil {
		return nil, err
	}

	releases, err := meter.Int64Counter("mpointer.releases",
		metric.WithDescription("Number of handle references released"),
	)
	if err != nil {
		return nil, err
	}

	staleOps, err := meter.Int64Counter("mpointer.stale_unregisters",
		metric.WithDescription("Identity-guarded operations ignored because the identity did not match"),
	)
	if err != nil {
		return nil, err
	}

	reclaimed, err := meter.Int64Counter("mpointer.reclaimed",
		metric.WithDescription("Number of allocations freed by the registry"),
	)
	if err != nil {
		return nil, err
	}

	live, err := meter.Int64UpDownCounter("mpointer.live",
		metric.WithDescription("Allocations currently tracked and not freed"),
	)
	if err != nil {
		return nil, err
	}

	sweeps, err := meter.Int64Counter("mpointer.sweeps",
		metric.WithDescription("Number of sweep passes"),
	)
	if err != nil {
		return nil, err
	}

	sweepLatency, err := meter.Float64Histogram("mpointer.sweep.latency_ms",
		metric.WithDescription("Sweep latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	sweepScanned, err := meter.Int64Histogram("mpointer.sweep.scanned",
		metric.WithDescription("Entries scanned per sweep"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		allocations:  allocations,
		releases:     releases,
		staleOps:     staleOps,
		reclaimed:    reclaimed,
		live:         live,
		sweeps:       sweeps,
		sweepLatency: sweepLatency,
		sweepScanned: sweepScanned,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before the first call:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func registryAttr(name string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("registry", name))
}

// RecordAllocation records a new tracked allocation.
func (m *otelMetrics) RecordAllocation(ctx context.Context, registry string) {
	attrs := registryAttr(registry)
	m.allocations.Add(ctx, 1, attrs)
	m.live.Add(ctx, 1, attrs)
}

// RecordRelease records a dropped reference.
func (m *otelMetrics) RecordRelease(ctx context.Context, registry string, reclaimable bool) {
	m.releases.Add(ctx, 1, metric.WithAttributes(
		attribute.String("registry", registry),
		attribute.Bool("reclaimable", reclaimable),
	))
}

// RecordStale records an ignored guarded operation.
func (m *otelMetrics) RecordStale(ctx context.Context, registry, op string) {
	m.staleOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("registry", registry),
		attribute.String("operation", op),
	))
}

// RecordFree records freed allocations.
func (m *otelMetrics) RecordFree(ctx context.Context, registry string, n int) {
	if n <= 0 {
		return
	}
	attrs := registryAttr(registry)
	m.reclaimed.Add(ctx, int64(n), attrs)
	m.live.Add(ctx, -int64(n), attrs)
}

// RecordSweep records a sweep pass.
func (m *otelMetrics) RecordSweep(ctx context.Context, registry string, scanned, reclaimed int, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("registry", registry),
		attribute.Bool("reclaimed_any", reclaimed > 0),
	)
	m.sweeps.Add(ctx, 1, attrs)
	m.sweepLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	m.sweepScanned.Record(ctx, int64(scanned), attrs)
}
