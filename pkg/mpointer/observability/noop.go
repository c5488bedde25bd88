package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

// Compile-time interface check.
var _ MetricsRecorder = NoopMetrics{}

// RecordAllocation does nothing.
func (NoopMetrics) RecordAllocation(_ context.Context, _ string) {}

// RecordRelease does nothing.
func (NoopMetrics) RecordRelease(_ context.Context, _ string, _ bool) {}

// RecordStale does nothing.
func (NoopMetrics) RecordStale(_ context.Context, _, _ string) {}

// RecordFree does nothing.
func (NoopMetrics) RecordFree(_ context.Context, _ string, _ int) {}

// RecordSweep does nothing.
func (NoopMetrics) RecordSweep(_ context.Context, _ string, _, _ int, _ time.Duration) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

// Compile-time interface check.
var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartSweepSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartSweepSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
