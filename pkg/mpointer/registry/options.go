package registry

import (
	"log/slog"
	"time"

	"github.com/randalmurphal/mpointer/pkg/mpointer/audit"
	"github.com/randalmurphal/mpointer/pkg/mpointer/config"
	"github.com/randalmurphal/mpointer/pkg/mpointer/observability"
)

// ReclaimMode decides what happens when the last handle releases an allocation.
type ReclaimMode string

const (
	// ReclaimDeferred marks the entry reclaimable; the next Sweep frees it.
	ReclaimDeferred ReclaimMode = config.ReclaimDeferred

	// ReclaimImmediate frees the allocation at the last release.
	ReclaimImmediate ReclaimMode = config.ReclaimImmediate
)

// options holds registry construction settings.
type options struct {
	settings config.Settings
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	journal  audit.Store
}

func defaultOptions() options {
	return options{settings: config.DefaultSettings()}
}

// Option configures a Registry.
type Option func(*options)

// WithSettings replaces all settings. Options that touch settings and come
// before it are overwritten.
//
// Example:
//
//	s, err := config.LoadSettings("mpointer.yaml")
//	if err != nil {
//	    return err
//	}
//	reg := registry.New(registry.WithSettings(s))
func WithSettings(s config.Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithName labels logs, metrics, spans and journal records.
// Default: "default"
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.settings.Name = name
		}
	}
}

// WithReclaimMode sets the reclaim mode. Unknown modes are ignored.
// Default: ReclaimDeferred
func WithReclaimMode(mode ReclaimMode) Option {
	return func(o *options) {
		switch mode {
		case ReclaimDeferred, ReclaimImmediate:
			o.settings.ReclaimMode = string(mode)
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter provider.
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.settings.Metrics = enabled
	}
}

// WithMetricsRecorder installs a specific recorder, overriding WithMetrics.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithTracing enables an OpenTelemetry span around every sweep.
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.settings.Tracing = enabled
	}
}

// WithSpanManager installs a specific span manager, overriding WithTracing.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(o *options) {
		o.spans = sm
	}
}

// WithJournal records every sweep in store. It takes precedence over a
// journal path from settings. Registry.Close closes the store.
func WithJournal(store audit.Store) Option {
	return func(o *options) {
		o.journal = store
	}
}

// WithSlowSweep logs sweeps that take longer than d at warn level.
func WithSlowSweep(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.settings.SlowSweep = d
		}
	}
}
