// Package observability provides logging, metrics and tracing for the
// pointer registry.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations when disabled.
package observability

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// EnrichLogger adds the registry name to a logger.
func EnrichLogger(logger *slog.Logger, registryName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("registry", registryName))
}

// LogAllocate logs a newly registered allocation.
func LogAllocate(logger *slog.Logger, id uint64, addr uintptr) {
	if logger == nil {
		return
	}
	logger.Debug("allocation registered",
		slog.Uint64("id", id),
		slog.String("addr", formatAddr(addr)),
	)
}

// LogRelease logs a dropped reference. refs is what remains.
func LogRelease(logger *slog.Logger, id uint64, addr uintptr, refs int, reclaimable bool) {
	if logger == nil {
		return
	}
	logger.Debug("reference released",
		slog.Uint64("id", id),
		slog.String("addr", formatAddr(addr)),
		slog.Int("refs", refs),
		slog.Bool("reclaimable", reclaimable),
	)
}

// LogStaleUnregister logs an identity-guarded operation that did not match.
// This is expected after copy-assignment and is not an error.
func LogStaleUnregister(logger *slog.Logger, op string, id uint64, addr uintptr) {
	if logger == nil {
		return
	}
	logger.Debug("stale registration ignored",
		slog.String("operation", op),
		slog.Uint64("id", id),
		slog.String("addr", formatAddr(addr)),
	)
}

// LogOverwrite logs a registration that replaced a different identity.
func LogOverwrite(logger *slog.Logger, addr uintptr, oldID, newID uint64) {
	if logger == nil {
		return
	}
	logger.Warn("registration overwrote identity",
		slog.String("addr", formatAddr(addr)),
		slog.Uint64("old_id", oldID),
		slog.Uint64("new_id", newID),
	)
}

// LogDoubleFree logs an attempt to free an allocation twice.
func LogDoubleFree(logger *slog.Logger, id uint64, addr uintptr) {
	if logger == nil {
		return
	}
	logger.Error("allocation already freed",
		slog.Uint64("id", id),
		slog.String("addr", formatAddr(addr)),
	)
}

// LogSweep logs a completed sweep. Sweeps slower than slow (when slow > 0)
// are logged at warn level.
func LogSweep(logger *slog.Logger, sweepID string, scanned, reclaimed int, durationMs float64, slow time.Duration) {
	if logger == nil {
		return
	}
	level := slog.LevelInfo
	msg := "sweep completed"
	if slow > 0 && durationMs > float64(slow)/float64(time.Millisecond) {
		level = slog.LevelWarn
		msg = "slow sweep"
	}
	logger.Log(context.Background(), level, msg,
		slog.String("sweep_id", sweepID),
		slog.Int("scanned", scanned),
		slog.Int("reclaimed", reclaimed),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogJournalError logs a failed journal write (non-fatal).
func LogJournalError(logger *slog.Logger, sweepID string, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("sweep journal failed",
		slog.String("sweep_id", sweepID),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}

func formatAddr(addr uintptr) string {
	return "0x" + strconv.FormatUint(uint64(addr), 16)
}
