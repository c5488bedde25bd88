// Package registry tracks heap allocations on behalf of managed pointers.
//
// A Registry maps each tracked allocation's address to a liveness Marker
// and a reference count, issues identities, and frees allocations during an
// explicit Sweep. It never runs in the background.
//
// # Identities
//
// AssignIdentity hands out strictly increasing identities starting at 1.
// Identity 0 is reserved for "unassigned" and is never issued.
//
// # Markers
//
// A Marker is either Live(id) or Reclaimable(id). The reclaim sentinel is a
// state, not a reserved identity, so the first allocation ever issued can
// never be swept by accident.
//
// # Lifecycle
//
//	r := registry.New(registry.WithName("arena"))
//
//	id := r.AssignIdentity(cell.Addr())
//	r.Register(cell, id)       // Live(id), 1 ref
//	r.Register(cell, id)       // a copy: Live(id), 2 refs
//	r.Release(cell.Addr(), id) // 1 ref
//	r.Release(cell.Addr(), id) // Reclaimable(id)
//	r.Sweep(ctx)               // cell freed, entry removed
//
// Unregister and MarkReclaimable only act when the entry is live under the
// caller's identity. Release also acts on an entry forced reclaimable while
// it still has holders. A stale caller is ignored without error.
//
// # Process-wide instance
//
// Default returns one registry per process, created lazily and exactly once.
// Code that wants isolation (tests, separate arenas) uses New and passes the
// registry explicitly.
//
// # Thread Safety
//
// All methods are safe for concurrent use. A single mutex serializes every
// operation, including the full Sweep scan.
package registry
