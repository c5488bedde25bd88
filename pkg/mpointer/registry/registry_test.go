package registry_test

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/randalmurphal/mpointer/pkg/mpointer/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAlloc is a minimal registry.Allocation.
type fakeAlloc struct {
	freed   atomic.Bool
	retires atomic.Int32
	frees   atomic.Int32
}

func (f *fakeAlloc) Addr() registry.Addr {
	return registry.Addr(uintptr(unsafe.Pointer(f)))
}

func (f *fakeAlloc) Retire() bool {
	f.retires.Add(1)
	return f.freed.CompareAndSwap(false, true)
}

func (f *fakeAlloc) Free() {
	f.frees.Add(1)
}

func (f *fakeAlloc) Freed() bool {
	return f.freed.Load()
}

// quietRegistry returns a registry that logs into a buffer.
func quietRegistry(opts ...registry.Option) (*registry.Registry, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return registry.New(append([]registry.Option{registry.WithLogger(logger)}, opts...)...), buf
}

// track allocates and registers a fake allocation.
func track(r *registry.Registry) (*fakeAlloc, registry.ID) {
	a := &fakeAlloc{}
	id := r.AssignIdentity(a.Addr())
	r.Register(a, id)
	return a, id
}

func TestNew_Defaults(t *testing.T) {
	r, _ := quietRegistry()
	assert.Equal(t, "default", r.Name())
	assert.Equal(t, registry.ReclaimDeferred, r.Mode())
	assert.Equal(t, 0, r.Len())
	assert.NoError(t, r.Close())
}

func TestNew_Options(t *testing.T) {
	r, _ := quietRegistry(
		registry.WithName("arena"),
		registry.WithReclaimMode(registry.ReclaimImmediate),
		registry.WithReclaimMode("bogus"),
	)
	assert.Equal(t, "arena", r.Name())
	assert.Equal(t, registry.ReclaimImmediate, r.Mode())
}

func TestAssignIdentity_StrictlyIncreasing(t *testing.T) {
	r, _ := quietRegistry()
	a := &fakeAlloc{}

	var prev registry.ID
	for i := 0; i < 100; i++ {
		id := r.AssignIdentity(a.Addr())
		assert.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, registry.ID(100), prev)
}

func TestAssignIdentity_FirstIsOne(t *testing.T) {
	r, _ := quietRegistry()
	_, id := track(r)
	assert.Equal(t, registry.ID(1), id)
}

func TestAssignIdentity_NullAddress(t *testing.T) {
	r, _ := quietRegistry()
	assert.Equal(t, registry.ID(0), r.AssignIdentity(0))

	_, id := track(r)
	assert.Equal(t, registry.ID(1), id, "null address must not consume an identity")
}

func TestAssignIdentity_Concurrent(t *testing.T) {
	r, _ := quietRegistry()
	const workers = 32
	const perWorker = 250

	results := make([][]registry.ID, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			a := &fakeAlloc{}
			for i := 0; i < perWorker; i++ {
				results[w] = append(results[w], r.AssignIdentity(a.Addr()))
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[registry.ID]bool, workers*perWorker)
	for _, ids := range results {
		for i, id := range ids {
			if i > 0 {
				assert.Greater(t, id, ids[i-1], "identities must increase per caller")
			}
			assert.False(t, seen[id], "identity %d issued twice", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, registry.ID(workers*perWorker), r.Stats().Issued)
}

func TestRegister_NewEntry(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)

	assert.Equal(t, 1, r.Len())
	m, ok := r.Lookup(a.Addr())
	require.True(t, ok)
	assert.Equal(t, registry.Live(id), m)
	assert.Equal(t, 1, r.Refs(a.Addr()))
}

func TestRegister_SameIdentityAddsReference(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)

	r.Register(a, id)
	r.Register(a, id)

	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 3, r.Refs(a.Addr()))
}

func TestRegister_DifferentIdentityOverwrites(t *testing.T) {
	r, logs := quietRegistry()
	a, oldID := track(r)
	r.Register(a, oldID)

	newID := r.AssignIdentity(a.Addr())
	r.Register(a, newID)

	m, ok := r.Lookup(a.Addr())
	require.True(t, ok)
	assert.Equal(t, registry.Live(newID), m)
	assert.Equal(t, 1, r.Refs(a.Addr()), "overwrite resets references")
	assert.Contains(t, logs.String(), "registration overwrote identity")

	// The old identity is now stale.
	assert.False(t, r.Release(a.Addr(), oldID))
	assert.Equal(t, 1, r.Refs(a.Addr()))
}

func TestRegister_IgnoresInvalidInput(t *testing.T) {
	r, _ := quietRegistry()

	r.Register(nil, 1)
	r.Register(&fakeAlloc{}, 0)

	freed := &fakeAlloc{}
	freed.Retire()
	r.Register(freed, r.AssignIdentity(freed.Addr()))

	assert.Equal(t, 0, r.Len())
}

func TestUnregister_MatchingIdentity(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)
	_, _ = track(r)

	before := r.Len()
	assert.True(t, r.Unregister(a.Addr(), id))
	assert.Equal(t, before-1, r.Len(), "exactly one entry removed")
	assert.True(t, a.Freed())
	assert.Equal(t, int32(1), a.frees.Load())

	_, ok := r.Lookup(a.Addr())
	assert.False(t, ok)
}

func TestUnregister_StaleIdentityIsNoop(t *testing.T) {
	r, logs := quietRegistry()
	a, id := track(r)

	before := r.Len()
	assert.False(t, r.Unregister(a.Addr(), id+1))
	assert.Equal(t, before, r.Len())
	assert.False(t, a.Freed())
	assert.Contains(t, logs.String(), "stale registration ignored")

	// An unknown address is a no-op too.
	other := &fakeAlloc{}
	assert.False(t, r.Unregister(other.Addr(), id))
	assert.False(t, r.Unregister(0, id))
	assert.False(t, r.Unregister(a.Addr(), 0))
	assert.Equal(t, before, r.Len())
}

func TestUnregister_IgnoresReclaimableEntry(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)
	require.True(t, r.Release(a.Addr(), id))

	assert.False(t, r.Unregister(a.Addr(), id))
	assert.Equal(t, 1, r.Len())
}

func TestRelease_Deferred(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)
	r.Register(a, id)

	assert.True(t, r.Release(a.Addr(), id))
	m, _ := r.Lookup(a.Addr())
	assert.Equal(t, registry.Live(id), m)
	assert.Equal(t, 1, r.Refs(a.Addr()))

	assert.True(t, r.Release(a.Addr(), id))
	m, _ = r.Lookup(a.Addr())
	assert.Equal(t, registry.Reclaimable(id), m)
	assert.True(t, m.IsReclaimable())
	assert.False(t, a.Freed(), "deferred mode frees only on sweep")

	// Further releases are stale.
	assert.False(t, r.Release(a.Addr(), id))

	res := r.Sweep(context.Background())
	assert.Equal(t, []registry.ID{id}, res.Identities)
	assert.True(t, a.Freed())
	assert.Equal(t, 0, r.Len())
}

func TestRelease_Immediate(t *testing.T) {
	r, _ := quietRegistry(registry.WithReclaimMode(registry.ReclaimImmediate))
	a, id := track(r)
	r.Register(a, id)

	assert.True(t, r.Release(a.Addr(), id))
	assert.False(t, a.Freed())
	assert.Equal(t, 1, r.Len())

	assert.True(t, r.Release(a.Addr(), id))
	assert.True(t, a.Freed())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(1), r.Stats().Reclaimed)
}

func TestRelease_RevivedBeforeSweep(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)

	require.True(t, r.Release(a.Addr(), id))
	r.Register(a, id)

	m, _ := r.Lookup(a.Addr())
	assert.Equal(t, registry.Live(id), m)
	assert.Equal(t, 1, r.Refs(a.Addr()))

	res := r.Sweep(context.Background())
	assert.Zero(t, res.Reclaimed)
	assert.False(t, a.Freed())
}

func TestRegister_RevivingForcedEntryKeepsHolders(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)
	r.Register(a, id) // second holder

	require.True(t, r.MarkReclaimable(a.Addr(), id))
	r.Register(a, id) // a third holder revives the entry
	assert.Equal(t, 3, r.Refs(a.Addr()))

	require.True(t, r.Release(a.Addr(), id))
	m, _ := r.Lookup(a.Addr())
	assert.Equal(t, registry.Live(id), m, "two holders remain")
	assert.Equal(t, 2, r.Refs(a.Addr()))

	res := r.Sweep(context.Background())
	assert.Zero(t, res.Reclaimed)
	assert.False(t, a.Freed())

	require.True(t, r.Release(a.Addr(), id))
	require.True(t, r.Release(a.Addr(), id))
	res = r.Sweep(context.Background())
	assert.Equal(t, 1, res.Reclaimed)
	assert.True(t, a.Freed())
}

func TestRelease_WhileForcedReclaimable(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)
	r.Register(a, id)

	require.True(t, r.MarkReclaimable(a.Addr(), id))
	require.True(t, r.Release(a.Addr(), id))
	r.Register(a, id) // revived with the one remaining holder plus the new one
	assert.Equal(t, 2, r.Refs(a.Addr()))

	require.True(t, r.Release(a.Addr(), id))
	require.True(t, r.Release(a.Addr(), id))
	m, _ := r.Lookup(a.Addr())
	assert.True(t, m.IsReclaimable(), "no holders are leaked")
	assert.False(t, r.Release(a.Addr(), id))
}

func TestMarkReclaimable(t *testing.T) {
	r, _ := quietRegistry()
	a, id := track(r)
	r.Register(a, id)

	assert.False(t, r.MarkReclaimable(a.Addr(), id+100))
	assert.True(t, r.MarkReclaimable(a.Addr(), id))

	m, _ := r.Lookup(a.Addr())
	assert.True(t, m.IsReclaimable())
	assert.Equal(t, 2, r.Refs(a.Addr()), "outstanding holders stay counted")

	// Holders still count down while the entry waits for the sweep.
	assert.True(t, r.Release(a.Addr(), id))
	assert.Equal(t, 1, r.Refs(a.Addr()))
	m, _ = r.Lookup(a.Addr())
	assert.True(t, m.IsReclaimable())

	r.Sweep(context.Background())
	assert.True(t, a.Freed())
	assert.False(t, r.Release(a.Addr(), id), "releasing after the sweep is stale")
}

func TestEntriesAndStats(t *testing.T) {
	r, _ := quietRegistry()
	a1, id1 := track(r)
	_, _ = track(r)
	_, _ = track(r)
	require.True(t, r.Release(a1.Addr(), id1))

	entries := r.Entries()
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Addr, entries[i].Addr)
	}

	st := r.Stats()
	assert.Equal(t, 2, st.Live)
	assert.Equal(t, 1, st.Reclaimable)
	assert.Equal(t, registry.ID(3), st.Issued)
	assert.Zero(t, st.Sweeps)

	r.Sweep(context.Background())
	st = r.Stats()
	assert.Equal(t, 2, st.Live)
	assert.Zero(t, st.Reclaimable)
	assert.Equal(t, uint64(1), st.Reclaimed)
	assert.Equal(t, uint64(1), st.Sweeps)
}

func TestMarkerString(t *testing.T) {
	assert.Equal(t, "live(4)", registry.Live(4).String())
	assert.Equal(t, "reclaimable(9)", registry.Reclaimable(9).String())
	assert.Equal(t, "unknown", registry.State(0).String())
	assert.Equal(t, "0x1f", registry.Addr(31).String())
}

func TestConcurrentLifecycle(t *testing.T) {
	r, _ := quietRegistry()
	const workers = 16
	const perWorker = 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				a, id := track(r)
				r.Register(a, id)
				r.Release(a.Addr(), id)
				r.Release(a.Addr(), id)
			}
		}()
	}

	// Sweep while workers run.
	stop := make(chan struct{})
	sweeps := make(chan int)
	go func() {
		total := 0
		for {
			select {
			case <-stop:
				sweeps <- total
				return
			default:
				total += r.Sweep(context.Background()).Reclaimed
			}
		}
	}()

	wg.Wait()
	close(stop)
	total := <-sweeps
	total += r.Sweep(context.Background()).Reclaimed

	assert.Equal(t, workers*perWorker, total)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, uint64(workers*perWorker), r.Stats().Reclaimed)
}

// reentrantAlloc releases another entry from inside Free, the way a value
// holding a handle does.
type reentrantAlloc struct {
	fakeAlloc
	r     *registry.Registry
	inner *fakeAlloc
	id    registry.ID
}

func (a *reentrantAlloc) Addr() registry.Addr {
	return registry.Addr(uintptr(unsafe.Pointer(a)))
}

func (a *reentrantAlloc) Free() {
	a.fakeAlloc.Free()
	a.r.Release(a.inner.Addr(), a.id)
}

func TestFree_MayReenterRegistry(t *testing.T) {
	for _, mode := range []registry.ReclaimMode{registry.ReclaimDeferred, registry.ReclaimImmediate} {
		t.Run(string(mode), func(t *testing.T) {
			r, _ := quietRegistry(registry.WithReclaimMode(mode))
			inner, innerID := track(r)

			outer := &reentrantAlloc{r: r, inner: inner, id: innerID}
			outerID := r.AssignIdentity(outer.Addr())
			r.Register(outer, outerID)

			require.True(t, r.Release(outer.Addr(), outerID))
			r.Sweep(context.Background())
			r.Sweep(context.Background())

			assert.True(t, outer.Freed())
			assert.True(t, inner.Freed())
			assert.Equal(t, 0, r.Len())
		})
	}
}
