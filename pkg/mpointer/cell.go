package mpointer

import (
	"sync/atomic"
	"unsafe"

	"github.com/randalmurphal/mpointer/pkg/mpointer/registry"
)

// Releaser is implemented by values that hold handles of their own. When the
// registry frees an allocation whose value is a Releaser, Release is called
// so the nested handles drop their references too.
type Releaser interface {
	Release()
}

// cell is the heap allocation behind a handle.
type cell[T any] struct {
	value T
	freed atomic.Bool
}

var _ registry.Allocation = (*cell[int])(nil)

func (c *cell[T]) Addr() registry.Addr {
	return registry.Addr(uintptr(unsafe.Pointer(c)))
}

func (c *cell[T]) Retire() bool {
	return c.freed.CompareAndSwap(false, true)
}

// Free releases nested handles and zeroes the value so anything it pointed
// to can be collected.
func (c *cell[T]) Free() {
	if r, ok := any(&c.value).(Releaser); ok {
		r.Release()
	} else if r, ok := any(c.value).(Releaser); ok {
		r.Release()
	}
	var zero T
	c.value = zero
}

func (c *cell[T]) Freed() bool {
	return c.freed.Load()
}
