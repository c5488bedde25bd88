package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Reclaim modes understood by the registry.
const (
	// ReclaimDeferred marks an allocation reclaimable when its last handle is
	// released and frees it on the next sweep.
	ReclaimDeferred = "deferred"

	// ReclaimImmediate frees an allocation as soon as its last handle is released.
	ReclaimImmediate = "immediate"
)

// EnvPrefix is the prefix of environment variables read by LoadSettings.
const EnvPrefix = "MPOINTER"

// ErrInvalidSettings is wrapped by every validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the registry configuration.
//
// YAML form:
//
//	registry:
//	  name: default
//	  reclaim_mode: deferred
//	  metrics: true
//	  tracing: false
//	  journal: ./sweeps.db
//	  log_level: info
//	  slow_sweep: 50ms
//	stress:
//	  workers: 8
//	  per_worker: 1000
type Settings struct {
	// Name labels logs, spans and journal records of the registry.
	Name string
	// ReclaimMode is ReclaimDeferred or ReclaimImmediate.
	ReclaimMode string
	// Metrics enables OpenTelemetry metrics.
	Metrics bool
	// Tracing enables OpenTelemetry spans around sweeps.
	Tracing bool
	// JournalPath is a SQLite file for sweep records. Empty disables the journal.
	JournalPath string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// SlowSweep is the duration above which a sweep is logged at warn level.
	// Zero disables the check.
	SlowSweep time.Duration

	// StressWorkers and StressPerWorker size the stress command when its
	// flags are not given.
	StressWorkers   int
	StressPerWorker int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		Name:        "default",
		ReclaimMode: ReclaimDeferred,
		LogLevel:    "info",

		StressWorkers:   8,
		StressPerWorker: 1000,
	}
}

// SettingsFrom reads settings from cfg. Registry values live under a
// "registry" section when present, otherwise at the top level; stress
// sizes live under "stress". Missing keys keep their DefaultSettings value.
func SettingsFrom(cfg Config) (Settings, error) {
	stress := cfg.Section("stress")
	if cfg.Has("registry") {
		cfg = cfg.Section("registry")
	}
	s := overlay(DefaultSettings(), cfg)
	s.StressWorkers = stress.Int("workers", s.StressWorkers)
	s.StressPerWorker = stress.Int("per_worker", s.StressPerWorker)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ApplyEnv overlays MPOINTER_* variables from environ onto s.
func ApplyEnv(s Settings, environ []string) (Settings, error) {
	s = overlay(s, FromEnviron(EnvPrefix, environ))
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadSettings reads settings from the file at path (if path is not empty)
// and then applies environment overrides.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path != "" {
		cfg, err := FromFile(path)
		if err != nil {
			return Settings{}, err
		}
		if s, err = SettingsFrom(cfg); err != nil {
			return Settings{}, err
		}
	}
	return ApplyEnv(s, os.Environ())
}

func overlay(s Settings, cfg Config) Settings {
	s.Name = cfg.String("name", s.Name)
	s.ReclaimMode = strings.ToLower(cfg.String("reclaim_mode", s.ReclaimMode))
	s.Metrics = cfg.Bool("metrics", s.Metrics)
	s.Tracing = cfg.Bool("tracing", s.Tracing)
	s.JournalPath = cfg.String("journal", s.JournalPath)
	s.LogLevel = strings.ToLower(cfg.String("log_level", s.LogLevel))
	s.SlowSweep = cfg.Duration("slow_sweep", s.SlowSweep)
	s.StressWorkers = cfg.Int("stress_workers", s.StressWorkers)
	s.StressPerWorker = cfg.Int("stress_per_worker", s.StressPerWorker)
	return s
}

// Validate reports whether s can configure a registry.
func (s Settings) Validate() error {
	switch s.ReclaimMode {
	case ReclaimDeferred, ReclaimImmediate:
	default:
		return fmt.Errorf("%w: reclaim_mode %q", ErrInvalidSettings, s.ReclaimMode)
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.SlowSweep < 0 {
		return fmt.Errorf("%w: slow_sweep must not be negative", ErrInvalidSettings)
	}
	if s.StressWorkers < 1 || s.StressPerWorker < 1 {
		return fmt.Errorf("%w: stress sizes must be positive", ErrInvalidSettings)
	}
	return nil
}

// Level returns LogLevel as an slog.Level, falling back to info.
func (s Settings) Level() slog.Level {
	l, err := parseLevel(s.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%w: log_level %q", ErrInvalidSettings, name)
}
