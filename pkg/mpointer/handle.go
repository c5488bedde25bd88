package mpointer

import (
	"context"
	"fmt"

	"github.com/randalmurphal/mpointer/pkg/mpointer/registry"
)

// State is a handle's lifecycle state.
type State uint8

const (
	// Unbound is the zero Handle: no allocation, identity 0.
	Unbound State = iota
	// Bound means the handle holds a reference to an allocation.
	Bound
	// Released is terminal; the handle gave up its reference.
	Released
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Handle is a managed pointer to a heap-allocated T.
//
// Handles share ownership: every bound handle holds one registry reference,
// and the allocation becomes reclaimable only when the last of them is
// released. Copy a handle with Clone or Assign; a plain Go assignment
// copies the fields without taking a reference.
//
// A Handle has no lock of its own. Use one handle from one goroutine at a
// time and give other goroutines their own clones.
type Handle[T any] struct {
	reg      *registry.Registry
	cell     *cell[T]
	id       registry.ID
	released bool
}

// New allocates a zero T, issues it an identity and registers it.
func New[T any](opts ...HandleOption) Handle[T] {
	o := resolveOptions(opts)

	c := &cell[T]{}
	id := o.registry.AssignIdentity(c.Addr())
	o.registry.Register(c, id)
	return Handle[T]{reg: o.registry, cell: c, id: id}
}

// NewValue is New followed by Store(v).
func NewValue[T any](v T, opts ...HandleOption) Handle[T] {
	h := New[T](opts...)
	h.cell.value = v
	return h
}

// Deref returns a pointer into the allocation. The pointer is valid until
// the allocation is freed; it must not be kept past the handle's Release.
func (h *Handle[T]) Deref() (*T, error) {
	if err := h.check("deref"); err != nil {
		return nil, err
	}
	return &h.cell.value, nil
}

// MustDeref is Deref that panics with the *AccessError.
func (h *Handle[T]) MustDeref() *T {
	p, err := h.Deref()
	if err != nil {
		panic(err)
	}
	return p
}

// Load returns a copy of the value.
func (h *Handle[T]) Load() (T, error) {
	if err := h.check("load"); err != nil {
		var zero T
		return zero, err
	}
	return h.cell.value, nil
}

// Store overwrites the value in place. The registry is not involved.
func (h *Handle[T]) Store(v T) error {
	if err := h.check("store"); err != nil {
		return err
	}
	h.cell.value = v
	return nil
}

func (h *Handle[T]) check(op string) error {
	var err error
	switch {
	case h.released:
		err = ErrReleased
	case h.cell == nil:
		err = ErrNullTarget
	case h.cell.Freed():
		err = ErrFreed
	default:
		return nil
	}
	return &AccessError{Op: op, ID: h.id, Err: err}
}

// Assign makes h refer to the same allocation and identity as other.
//
// h's current reference is released first, subject to the registry's
// identity guard, and other's pair is registered again so it gains a
// reference. Assigning a handle to itself, or to a copy with the same
// allocation and identity, changes nothing. Assigning an Unbound handle
// leaves h Unbound.
func (h *Handle[T]) Assign(other Handle[T]) error {
	if h.released {
		return &AccessError{Op: "assign", ID: h.id, Err: ErrReleased}
	}
	if other.released {
		return &AccessError{Op: "assign", ID: other.id, Err: ErrReleased}
	}
	if h.cell == other.cell && h.id == other.id {
		return nil
	}

	// Take the new reference before dropping the old one so an allocation
	// reachable only through h cannot free other's.
	if other.cell != nil {
		other.reg.Register(other.cell, other.id)
	}
	h.drop()
	h.reg, h.cell, h.id = other.reg, other.cell, other.id
	return nil
}

// Clone returns a new handle sharing h's allocation. Cloning an Unbound or
// Released handle yields an Unbound handle, whose accesses fail with
// ErrNullTarget. Use Assign to have a released source reported as
// ErrReleased.
func (h *Handle[T]) Clone() Handle[T] {
	if h.released || h.cell == nil {
		return Handle[T]{}
	}
	h.reg.Register(h.cell, h.id)
	return Handle[T]{reg: h.reg, cell: h.cell, id: h.id}
}

// Release gives up the handle's reference. The handle becomes Released and
// later accesses fail with ErrReleased. Releasing an Unbound or Released
// handle does nothing.
func (h *Handle[T]) Release() {
	if h.released || h.cell == nil {
		return
	}
	h.drop()
	h.released = true
}

func (h *Handle[T]) drop() {
	if h.cell != nil {
		h.reg.Release(h.cell.Addr(), h.id)
	}
	h.cell = nil
}

// ID returns the identity issued for the allocation, or 0 if unbound.
func (h *Handle[T]) ID() registry.ID {
	return h.id
}

// Addr returns the allocation's address, or 0 when not bound.
func (h *Handle[T]) Addr() registry.Addr {
	if h.cell == nil {
		return 0
	}
	return h.cell.Addr()
}

// State returns the lifecycle state.
func (h *Handle[T]) State() State {
	switch {
	case h.released:
		return Released
	case h.cell == nil:
		return Unbound
	default:
		return Bound
	}
}

// Registry returns the registry tracking the allocation, or nil if unbound.
func (h *Handle[T]) Registry() *registry.Registry {
	return h.reg
}

// Sweep runs a sweep on the process-wide registry.
func Sweep(ctx context.Context) registry.SweepResult {
	return registry.Default().Sweep(ctx)
}
