package registry

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/mpointer/pkg/mpointer/audit"
	"github.com/randalmurphal/mpointer/pkg/mpointer/observability"
)

// Registry tracks allocations, the identity each one was issued and how
// many handles hold it. It is the only component that frees allocations.
//
// Every operation runs under a single mutex held for its whole duration,
// so a Sweep blocks registration until its scan completes. Allocations are
// retired under the lock and their contents freed right after it is dropped.
type Registry struct {
	mu      sync.Mutex
	entries map[Addr]*entry
	nextID  atomic.Uint64

	reclaimed uint64
	sweeps    uint64

	name      string
	mode      ReclaimMode
	slowSweep time.Duration
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	journal   audit.Store
}

type entry struct {
	alloc  Allocation
	marker Marker
	refs   int
}

// New creates a registry. It never fails: a journal that cannot be opened
// is logged and left out.
func New(opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := o.settings

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.EnrichLogger(logger, s.Name)

	r := &Registry{
		entries:   make(map[Addr]*entry),
		name:      s.Name,
		mode:      ReclaimMode(s.ReclaimMode),
		slowSweep: s.SlowSweep,
		logger:    logger,
		metrics:   o.metrics,
		spans:     o.spans,
		journal:   o.journal,
	}
	if r.mode != ReclaimImmediate {
		r.mode = ReclaimDeferred
	}

	if r.metrics == nil {
		if s.Metrics {
			r.metrics = observability.NewMetricsRecorder()
		} else {
			r.metrics = observability.NoopMetrics{}
		}
	}
	if r.spans == nil {
		if s.Tracing {
			r.spans = observability.NewSpanManager()
		} else {
			r.spans = observability.NoopSpanManager{}
		}
	}
	if r.journal == nil && s.JournalPath != "" {
		store, err := audit.NewSQLiteStore(s.JournalPath)
		if err != nil {
			observability.LogJournalError(logger, "", "open", err)
		} else {
			r.journal = store
		}
	}

	return r
}

// Name returns the registry's name.
func (r *Registry) Name() string {
	return r.name
}

// Mode returns the reclaim mode.
func (r *Registry) Mode() ReclaimMode {
	return r.mode
}

// AssignIdentity issues the next identity for a freshly allocated address.
// Identities start at 1, increase strictly and are never reused. A zero
// address gets no identity and 0 is returned.
func (r *Registry) AssignIdentity(addr Addr) ID {
	if addr == 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return ID(r.nextID.Add(1))
}

// Register records a as live under id.
//
// Registering the identity already recorded for the address adds a
// reference, and revives an entry marked reclaimable but not yet swept.
// Reviving keeps the references of handles that still hold the entry.
// Registering a different identity overwrites the old one; the overwrite
// is logged at warn level. A nil or freed allocation, or a zero id, is
// ignored.
func (r *Registry) Register(a Allocation, id ID) {
	if a == nil || id == 0 {
		return
	}
	addr := a.Addr()
	if addr == 0 {
		return
	}
	ctx := context.Background()

	r.mu.Lock()
	defer r.mu.Unlock()

	if a.Freed() {
		observability.LogStaleUnregister(r.logger, "register", uint64(id), uintptr(addr))
		r.metrics.RecordStale(ctx, r.name, "register")
		return
	}

	e, ok := r.entries[addr]
	switch {
	case !ok:
		r.entries[addr] = &entry{alloc: a, marker: Live(id), refs: 1}
		observability.LogAllocate(r.logger, uint64(id), uintptr(addr))
		r.metrics.RecordAllocation(ctx, r.name)
	case e.marker.ID == id:
		// A reclaimable entry not yet swept is revived. Handles still
		// holding it keep their references.
		e.marker = Live(id)
		e.refs++
	default:
		observability.LogOverwrite(r.logger, uintptr(addr), uint64(e.marker.ID), uint64(id))
		e.alloc = a
		e.marker = Live(id)
		e.refs = 1
	}
}

// Unregister removes the entry for addr and frees its allocation, but only
// if the entry is live under id. Anything else is a silent no-op, which is
// what a handle that lost a copy-assignment race expects. It reports
// whether the entry was removed.
func (r *Registry) Unregister(addr Addr, id ID) bool {
	if addr == 0 || id == 0 {
		return false
	}

	r.mu.Lock()
	e, ok := r.matchLocked("unregister", addr, id)
	retired := false
	if ok {
		delete(r.entries, addr)
		retired = r.retireLocked(e)
	}
	r.mu.Unlock()

	if retired {
		e.alloc.Free()
		r.metrics.RecordFree(context.Background(), r.name, 1)
	}
	return ok
}

// Release drops one handle reference to the entry recorded under id. When
// the last reference goes the entry becomes reclaimable, or in
// ReclaimImmediate mode is removed and freed. An entry forced reclaimable by
// MarkReclaimable still counts its holders down. Mismatches are silent
// no-ops. It reports whether a reference was dropped.
func (r *Registry) Release(addr Addr, id ID) bool {
	if addr == 0 || id == 0 {
		return false
	}
	ctx := context.Background()

	r.mu.Lock()
	e, ok := r.holderLocked(addr, id)
	if !ok {
		r.mu.Unlock()
		return false
	}

	e.refs--
	last := e.refs <= 0
	retired := false
	if last {
		e.refs = 0
		if r.mode == ReclaimImmediate {
			delete(r.entries, addr)
			retired = r.retireLocked(e)
		} else {
			e.marker = Reclaimable(id)
		}
	}
	observability.LogRelease(r.logger, uint64(id), uintptr(addr), e.refs, last)
	r.mu.Unlock()

	r.metrics.RecordRelease(ctx, r.name, last)
	if retired {
		e.alloc.Free()
		r.metrics.RecordFree(ctx, r.name, 1)
	}
	return true
}

// MarkReclaimable flags the entry live under id for the next sweep, even if
// handles still hold it. Their references stay counted. Those handles
// observe the allocation as freed once the sweep runs, unless one of them
// registers it again first. It reports whether the entry was marked.
func (r *Registry) MarkReclaimable(addr Addr, id ID) bool {
	if addr == 0 || id == 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.matchLocked("mark", addr, id)
	if !ok {
		return false
	}
	e.marker = Reclaimable(id)
	return true
}

// matchLocked returns the entry for addr if it is live under id.
func (r *Registry) matchLocked(op string, addr Addr, id ID) (*entry, bool) {
	e, ok := r.entries[addr]
	if !ok || e.marker != Live(id) {
		observability.LogStaleUnregister(r.logger, op, uint64(id), uintptr(addr))
		r.metrics.RecordStale(context.Background(), r.name, op)
		return nil, false
	}
	return e, true
}

// holderLocked returns the entry for addr if it is recorded under id and
// still has a reference to drop.
func (r *Registry) holderLocked(addr Addr, id ID) (*entry, bool) {
	e, ok := r.entries[addr]
	if ok && e.marker.ID == id && (e.marker.State == StateLive || e.refs > 0) {
		return e, true
	}
	return r.matchLocked("release", addr, id)
}

// retireLocked retires e's allocation and counts it. Retiring twice is
// logged and reported as false.
func (r *Registry) retireLocked(e *entry) bool {
	if !e.alloc.Retire() {
		observability.LogDoubleFree(r.logger, uint64(e.marker.ID), uintptr(e.alloc.Addr()))
		return false
	}
	r.reclaimed++
	return true
}

// Len returns the number of entries, live and reclaimable.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Lookup returns the marker recorded for addr.
func (r *Registry) Lookup(addr Addr) (Marker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[addr]
	if !ok {
		return Marker{}, false
	}
	return e.marker, true
}

// Refs returns the number of handles holding addr, or 0 if untracked.
func (r *Registry) Refs(addr Addr) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[addr]; ok {
		return e.refs
	}
	return 0
}

// Entries returns a snapshot of every entry ordered by address.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for addr, e := range r.entries {
		out = append(out, Entry{Addr: addr, Marker: e.marker, Refs: e.refs})
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Addr < b.Addr:
			return -1
		case a.Addr > b.Addr:
			return 1
		}
		return 0
	})
	return out
}

// Stats returns counters describing the registry.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		Issued:    ID(r.nextID.Load()),
		Reclaimed: r.reclaimed,
		Sweeps:    r.sweeps,
	}
	for _, e := range r.entries {
		if e.marker.IsReclaimable() {
			st.Reclaimable++
		} else {
			st.Live++
		}
	}
	return st
}

// Close closes the sweep journal, if any. The registry stays usable;
// later sweeps are simply not journaled.
func (r *Registry) Close() error {
	r.mu.Lock()
	j := r.journal
	r.journal = nil
	r.mu.Unlock()

	if j == nil {
		return nil
	}
	return j.Close()
}
