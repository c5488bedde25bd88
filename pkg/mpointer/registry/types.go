package registry

import (
	"fmt"
	"strconv"
	"time"
)

// ID is the identity issued to an allocation at creation.
// Zero means "unassigned" and is never issued.
type ID uint64

// Addr is the address of a tracked allocation.
type Addr uintptr

// String formats the address in hex.
func (a Addr) String() string {
	return "0x" + strconv.FormatUint(uint64(a), 16)
}

// State is the liveness state recorded for an entry.
type State uint8

const (
	// StateLive means at least one handle holds the allocation.
	StateLive State = iota + 1

	// StateReclaimable means the allocation is waiting for the next sweep.
	StateReclaimable
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateLive:
		return "live"
	case StateReclaimable:
		return "reclaimable"
	default:
		return "unknown"
	}
}

// Marker is the liveness marker recorded for an address. The reclaim
// sentinel is StateReclaimable, so no issued identity can be mistaken for it.
type Marker struct {
	State State
	ID    ID
}

// Live returns a live marker for id.
func Live(id ID) Marker {
	return Marker{State: StateLive, ID: id}
}

// Reclaimable returns a reclaimable marker that remembers the last identity.
func Reclaimable(id ID) Marker {
	return Marker{State: StateReclaimable, ID: id}
}

// IsReclaimable reports whether the next sweep frees the entry.
func (m Marker) IsReclaimable() bool {
	return m.State == StateReclaimable
}

// String formats the marker as "state(id)".
func (m Marker) String() string {
	return fmt.Sprintf("%s(%d)", m.State, m.ID)
}

// Allocation is a heap cell the registry tracks and eventually frees.
// The registry holds a reference to every tracked Allocation, so its Addr
// stays valid until the entry is removed.
//
// Freeing happens in two steps. Retire runs under the registry lock and
// makes the cell dead, so it can no longer be registered. Free runs after
// the lock is dropped and releases the contents, which may call back into
// the registry.
type Allocation interface {
	// Addr returns the cell's address. It must be stable and non-zero.
	Addr() Addr

	// Retire marks the cell dead. It returns false if it already was.
	Retire() bool

	// Free releases the contents of a retired cell.
	Free()

	// Freed reports whether the cell has been retired.
	Freed() bool
}

// Entry is a point-in-time view of one registry entry.
type Entry struct {
	Addr   Addr
	Marker Marker
	// Refs counts handles that registered the allocation and have not
	// released it.
	Refs int
}

// Stats summarizes the registry.
type Stats struct {
	Live        int
	Reclaimable int
	// Issued is the last identity handed out.
	Issued ID
	// Reclaimed counts allocations freed over the registry's lifetime.
	Reclaimed uint64
	Sweeps    uint64
}

// SweepResult describes one sweep pass.
type SweepResult struct {
	ID         string
	Scanned    int
	Reclaimed  int
	Identities []ID
	Duration   time.Duration
}
