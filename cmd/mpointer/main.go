// Command mpointer exercises managed handles against a registry: it runs
// the linked-list demo, a concurrency stress test, and lists the sweep
// journal.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randalmurphal/mpointer/pkg/mpointer/config"
	"github.com/randalmurphal/mpointer/pkg/mpointer/registry"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var version = "dev" // set by the linker

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra already printed the error.
		os.Exit(1)
	}
}

// app is the state shared by all subcommands of one invocation.
type app struct {
	cfgFile  string
	journal  string
	logLevel string
	metrics  bool

	settings config.Settings
	logger   *slog.Logger
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// newRootCmd builds a fresh command tree, so tests get isolated instances.
func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "mpointer",
		Short: "Reference-tracked managed pointers",
		Long: `mpointer drives handles against a registry that issues identities,
tracks references and reclaims released allocations on an explicit sweep.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.finish(cmd.ErrOrStderr())
		},
	}
	cmd.Version = version

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "YAML or JSON settings file")
	cmd.PersistentFlags().StringVar(&a.journal, "journal", "", "SQLite sweep journal path (overrides settings)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", `log level ("debug", "info", "warn", "error")`)
	cmd.PersistentFlags().BoolVar(&a.metrics, "metrics", false, "print a metrics summary to stderr on exit")

	cmd.AddCommand(newDemoCmd(a))
	cmd.AddCommand(newStressCmd(a))
	cmd.AddCommand(newJournalCmd(a))
	return cmd
}

// init resolves settings: defaults, then the config file, then MPOINTER_*
// environment variables, then flags.
func (a *app) init(stderr io.Writer) error {
	s, err := config.LoadSettings(a.cfgFile)
	if err != nil {
		return err
	}
	if a.journal != "" {
		s.JournalPath = a.journal
	}
	if a.logLevel != "" {
		s.LogLevel = a.logLevel
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if a.metrics {
		s.Metrics = true
		a.reader, a.provider = installMeterProvider()
	}

	a.settings = s
	a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: s.Level()}))
	return nil
}

func (a *app) finish(stderr io.Writer) error {
	if a.reader == nil {
		return nil
	}
	err := printMetrics(stderr, a.reader)
	if shutdownErr := a.provider.Shutdown(context.Background()); err == nil {
		err = shutdownErr
	}
	return err
}

// newRegistry builds a registry from the resolved settings. The caller
// closes it.
func (a *app) newRegistry() *registry.Registry {
	return registry.New(
		registry.WithSettings(a.settings),
		registry.WithLogger(a.logger),
	)
}

func closeRegistry(reg *registry.Registry, logger *slog.Logger) {
	if err := reg.Close(); err != nil {
		logger.Warn("closing registry", slog.String("error", err.Error()))
	}
}

// errorf is fmt.Errorf prefixed with the command name.
func errorf(cmd *cobra.Command, format string, args ...any) error {
	return fmt.Errorf("%s: "+format, append([]any{cmd.Name()}, args...)...)
}
