// Package list is a push-front singly linked list whose elements live in
// managed handles.
//
// The list owns its nodes. Each node holds one handle reference, dropped
// when the node is removed or the list cleared; the allocations are then
// reclaimed by the registry's next sweep.
package list

import (
	"sync"

	"github.com/randalmurphal/mpointer/pkg/mpointer"
	"github.com/randalmurphal/mpointer/pkg/mpointer/registry"
)

type node[T any] struct {
	h    mpointer.Handle[T]
	next *node[T]
}

// List is safe for concurrent use.
type List[T any] struct {
	mu   sync.RWMutex
	reg  *registry.Registry
	head *node[T]
	n    int
}

// New returns an empty list whose handles are tracked by reg, or by
// registry.Default() when reg is nil.
func New[T any](reg *registry.Registry) *List[T] {
	if reg == nil {
		reg = registry.Default()
	}
	return &List[T]{reg: reg}
}

// PushFront stores v in a new handle at the front and returns its identity.
func (l *List[T]) PushFront(v T) registry.ID {
	h := mpointer.NewValue(v, mpointer.WithRegistry(l.reg))
	id := h.ID()
	l.push(h)
	return id
}

// PushHandle puts a clone of h at the front. The caller keeps its own
// reference. It fails with h's access error if h is not usable.
func (l *List[T]) PushHandle(h mpointer.Handle[T]) error {
	if _, err := h.Deref(); err != nil {
		return err
	}
	l.push(h.Clone())
	return nil
}

func (l *List[T]) push(h mpointer.Handle[T]) {
	l.mu.Lock()
	l.head = &node[T]{h: h, next: l.head}
	l.n++
	l.mu.Unlock()
}

// Each calls fn for every element front to back until fn returns false.
// fn must not release the handle or modify the list.
func (l *List[T]) Each(fn func(i int, h *mpointer.Handle[T]) bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := 0
	for n := l.head; n != nil; n = n.next {
		if !fn(i, &n.h) {
			return
		}
		i++
	}
}

// Values returns the elements front to back. It stops at the first
// element that cannot be read.
func (l *List[T]) Values() ([]T, error) {
	out := make([]T, 0, l.Len())
	var err error
	l.Each(func(_ int, h *mpointer.Handle[T]) bool {
		var v T
		v, err = h.Load()
		if err != nil {
			return false
		}
		out = append(out, v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Front returns a clone of the first element's handle, which the caller
// must release.
func (l *List[T]) Front() (mpointer.Handle[T], bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.head == nil {
		return mpointer.Handle[T]{}, false
	}
	return l.head.h.Clone(), true
}

// Remove unlinks the first element with identity id and releases its
// handle. It reports whether an element was removed.
func (l *List[T]) Remove(id registry.ID) bool {
	l.mu.Lock()
	var removed *node[T]
	for link := &l.head; *link != nil; link = &(*link).next {
		if (*link).h.ID() == id {
			removed = *link
			*link = removed.next
			l.n--
			break
		}
	}
	l.mu.Unlock()

	// Released outside the lock: freeing may run the value's Release.
	if removed == nil {
		return false
	}
	removed.h.Release()
	return true
}

// Len returns the number of elements.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.n
}

// Clear releases every element and empties the list. It returns how many
// elements were released.
func (l *List[T]) Clear() int {
	l.mu.Lock()
	head := l.head
	n := l.n
	l.head = nil
	l.n = 0
	l.mu.Unlock()

	for ; head != nil; head = head.next {
		head.h.Release()
	}
	return n
}
