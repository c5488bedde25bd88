package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger returns a debug-level JSON logger and a function decoding
// every line written so far.
func captureLogger(t *testing.T) (*slog.Logger, func() []map[string]any) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, func() []map[string]any {
		var out []map[string]any
		sc := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
		for sc.Scan() {
			var m map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
			out = append(out, m)
		}
		return out
	}
}

func TestLogHelpers_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Nil(t, EnrichLogger(nil, "r"))
		LogAllocate(nil, 1, 0x10)
		LogRelease(nil, 1, 0x10, 0, true)
		LogStaleUnregister(nil, "release", 1, 0x10)
		LogOverwrite(nil, 0x10, 1, 2)
		LogDoubleFree(nil, 1, 0x10)
		LogSweep(nil, "s", 1, 1, 0.5, 0)
		LogJournalError(nil, "s", "append", errors.New("x"))
	})
}

func TestEnrichLogger(t *testing.T) {
	logger, lines := captureLogger(t)
	EnrichLogger(logger, "arena").Info("hello")

	got := lines()
	require.Len(t, got, 1)
	assert.Equal(t, "arena", got[0]["registry"])
}

func TestLogAllocateAndRelease(t *testing.T) {
	logger, lines := captureLogger(t)

	LogAllocate(logger, 7, 0xc000010000)
	LogRelease(logger, 7, 0xc000010000, 0, true)

	got := lines()
	require.Len(t, got, 2)

	assert.Equal(t, "allocation registered", got[0]["msg"])
	assert.Equal(t, "DEBUG", got[0]["level"])
	assert.Equal(t, float64(7), got[0]["id"])
	assert.Equal(t, "0xc000010000", got[0]["addr"])

	assert.Equal(t, "reference released", got[1]["msg"])
	assert.Equal(t, float64(0), got[1]["refs"])
	assert.Equal(t, true, got[1]["reclaimable"])
}

func TestLogOverwriteAndDoubleFree(t *testing.T) {
	logger, lines := captureLogger(t)

	LogOverwrite(logger, 0x20, 1, 2)
	LogDoubleFree(logger, 2, 0x20)

	got := lines()
	require.Len(t, got, 2)
	assert.Equal(t, "WARN", got[0]["level"])
	assert.Equal(t, float64(1), got[0]["old_id"])
	assert.Equal(t, float64(2), got[0]["new_id"])
	assert.Equal(t, "ERROR", got[1]["level"])
}

func TestLogSweep_Levels(t *testing.T) {
	tests := []struct {
		name       string
		durationMs float64
		slow       time.Duration
		wantLevel  string
		wantMsg    string
	}{
		{"no threshold", 500, 0, "INFO", "sweep completed"},
		{"under threshold", 1, 10 * time.Millisecond, "INFO", "sweep completed"},
		{"over threshold", 20, 10 * time.Millisecond, "WARN", "slow sweep"},
		{"sub-millisecond threshold", 0.5, 100 * time.Microsecond, "WARN", "slow sweep"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, lines := captureLogger(t)
			LogSweep(logger, "sweep-1", 3, 2, tt.durationMs, tt.slow)

			got := lines()
			require.Len(t, got, 1)
			assert.Equal(t, tt.wantLevel, got[0]["level"])
			assert.Equal(t, tt.wantMsg, got[0]["msg"])
			assert.Equal(t, "sweep-1", got[0]["sweep_id"])
			assert.Equal(t, float64(3), got[0]["scanned"])
			assert.Equal(t, float64(2), got[0]["reclaimed"])
		})
	}
}

func TestLogJournalError(t *testing.T) {
	logger, lines := captureLogger(t)
	LogJournalError(logger, "sweep-9", "append", errors.New("disk full"))

	got := lines()
	require.Len(t, got, 1)
	assert.Equal(t, "WARN", got[0]["level"])
	assert.Equal(t, "disk full", got[0]["error"])
	assert.Equal(t, "append", got[0]["operation"])
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), float64(4))
}
