package registry

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/mpointer/pkg/mpointer/audit"
	"github.com/randalmurphal/mpointer/pkg/mpointer/observability"
	"go.opentelemetry.io/otel/attribute"
)

// Sweep frees and removes every reclaimable entry and leaves the rest
// untouched. It runs only when called; there is no background collector.
//
// The scan holds the registry lock throughout. ctx carries tracing and
// metrics; the scan itself cannot be cancelled.
// Journal failures are logged, never returned.
func (r *Registry) Sweep(ctx context.Context) SweepResult {
	if ctx == nil {
		ctx = context.Background()
	}
	res := SweepResult{ID: uuid.NewString()}
	ctx, span := r.spans.StartSweepSpan(ctx, r.name, res.ID)
	start := time.Now()

	r.mu.Lock()
	res.Scanned = len(r.entries)
	var doomed []*entry
	for addr, e := range r.entries {
		if !e.marker.IsReclaimable() {
			continue
		}
		delete(r.entries, addr)
		if r.retireLocked(e) {
			doomed = append(doomed, e)
		}
		res.Identities = append(res.Identities, e.marker.ID)
	}
	r.sweeps++
	journal := r.journal
	r.mu.Unlock()

	for _, e := range doomed {
		e.alloc.Free()
	}
	freed := len(doomed)
	res.Reclaimed = len(res.Identities)
	res.Duration = time.Since(start)
	slices.Sort(res.Identities)

	r.metrics.RecordFree(ctx, r.name, freed)
	r.metrics.RecordSweep(ctx, r.name, res.Scanned, res.Reclaimed, res.Duration)
	r.spans.AddSpanEvent(ctx, "sweep.scanned",
		attribute.Int("sweep.scanned", res.Scanned),
		attribute.Int("sweep.reclaimed", res.Reclaimed),
	)

	var journalErr error
	if journal != nil {
		journalErr = journal.Append(audit.Record{
			SweepID:    res.ID,
			Registry:   r.name,
			Timestamp:  start.UTC(),
			Scanned:    res.Scanned,
			Reclaimed:  res.Reclaimed,
			Identities: identitiesToUint64(res.Identities),
		})
		if journalErr != nil {
			observability.LogJournalError(r.logger, res.ID, "append", journalErr)
		}
	}
	r.spans.EndSpanWithError(span, journalErr)

	observability.LogSweep(r.logger, res.ID, res.Scanned, res.Reclaimed,
		float64(res.Duration)/float64(time.Millisecond), r.slowSweep)
	return res
}

func identitiesToUint64(ids []ID) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}
