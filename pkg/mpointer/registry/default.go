package registry

import (
	"log/slog"
	"os"
	"sync"

	"github.com/randalmurphal/mpointer/pkg/mpointer/config"
)

var (
	defaultOnce     sync.Once
	defaultMu       sync.Mutex
	defaultStarted  bool
	defaultOpts     []Option
	defaultRegistry *Registry
)

// Default returns the process-wide registry, creating it on first use.
// Concurrent first callers all receive the same instance.
//
// The instance starts from DefaultSettings with MPOINTER_* environment
// overrides applied, followed by any options given to SetDefaultOptions.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultMu.Lock()
		defaultStarted = true
		opts := defaultOpts
		defaultMu.Unlock()

		s, err := config.ApplyEnv(config.DefaultSettings(), os.Environ())
		if err != nil {
			slog.Warn("ignoring invalid MPOINTER_* environment",
				slog.String("error", err.Error()))
			s = config.DefaultSettings()
		}
		r := New(append([]Option{WithSettings(s)}, opts...)...)

		defaultMu.Lock()
		defaultRegistry = r
		defaultMu.Unlock()
	})
	return defaultRegistry
}

// SetDefaultOptions configures the registry Default will create. It must run
// before the first call to Default and reports false if that already
// happened, in which case opts are ignored.
func SetDefaultOptions(opts ...Option) bool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStarted {
		return false
	}
	defaultOpts = opts
	return true
}
