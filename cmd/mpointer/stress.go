package main

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/randalmurphal/mpointer/pkg/mpointer"
	"github.com/randalmurphal/mpointer/pkg/mpointer/observability"
	"github.com/randalmurphal/mpointer/pkg/mpointer/registry"
	"github.com/spf13/cobra"
)

// stressResult summarizes one stress run.
type stressResult struct {
	Created   int
	Distinct  int
	Ordered   bool
	Reclaimed int
	Remaining int
}

// runStress creates perWorker handles on each of workers goroutines,
// releases them all and sweeps once.
func runStress(cmd *cobra.Command, reg *registry.Registry, workers, perWorker int) stressResult {
	ids := make([][]registry.ID, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			handles := make([]mpointer.Handle[int], 0, perWorker)
			for i := 0; i < perWorker; i++ {
				h := mpointer.NewValue(i, mpointer.WithRegistry(reg))
				ids[w] = append(ids[w], h.ID())
				handles = append(handles, h)
			}
			for i := range handles {
				handles[i].Release()
			}
		}(w)
	}
	wg.Wait()

	res := stressResult{Ordered: true}
	seen := make(map[registry.ID]struct{}, workers*perWorker)
	for _, list := range ids {
		for i, id := range list {
			if i > 0 && id <= list[i-1] {
				res.Ordered = false
			}
			seen[id] = struct{}{}
			res.Created++
		}
	}
	res.Distinct = len(seen)
	res.Reclaimed = reg.Sweep(cmd.Context()).Reclaimed
	res.Remaining = reg.Len()
	return res
}

func newStressCmd(a *app) *cobra.Command {
	var workers, perWorker int

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Create handles from many goroutines and check identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") {
				workers = a.settings.StressWorkers
			}
			if !cmd.Flags().Changed("per-worker") {
				perWorker = a.settings.StressPerWorker
			}
			if workers < 1 || perWorker < 1 {
				return errorf(cmd, "--workers and --per-worker must be positive")
			}
			reg := a.newRegistry()
			defer closeRegistry(reg, a.logger)

			done := observability.TimedOperation()
			res := runStress(cmd, reg, workers, perWorker)
			a.logger.Info("stress completed",
				slog.Int("workers", workers),
				slog.Int("per_worker", perWorker),
				slog.Float64("duration_ms", done()),
			)
			fmt.Fprintf(cmd.OutOrStdout(),
				"created=%d distinct=%d ordered=%t reclaimed=%d remaining=%d\n",
				res.Created, res.Distinct, res.Ordered, res.Reclaimed, res.Remaining)

			if res.Distinct != res.Created || !res.Ordered {
				return errorf(cmd, "identity check failed")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 8, "concurrent goroutines (overrides stress.workers)")
	cmd.Flags().IntVar(&perWorker, "per-worker", 1000, "handles created per goroutine (overrides stress.per_worker)")
	return cmd
}
