/*
Package mpointer provides reference-tracked managed pointers.

# Overview

A Handle wraps one heap allocation and registers it with a Registry. The
registry issues every allocation a unique, increasing identity and records
whether it is still held. Nothing is freed in the background: allocations
whose last handle was released are reclaimed when the owning program calls
Sweep.

# Basic Usage

	h := mpointer.New[int]()
	defer h.Release()

	if err := h.Store(42); err != nil {
	    return err
	}
	v, err := h.Load()

	// Later, once a batch of handles is released:
	res := mpointer.Sweep(ctx)
	fmt.Println(res.Reclaimed)

# Sharing

Clone and Assign share the allocation and its identity. Each copy holds its
own reference, so releasing one never frees memory another still uses:

	a := mpointer.NewValue(10)
	b := a.Clone()
	a.Release()
	v, _ := b.Load() // 10

# Errors

Access through an unbound handle fails with ErrNullTarget, through a
released one with ErrReleased, and through one whose allocation the
registry already freed with ErrFreed. All are wrapped in *AccessError:

	if _, err := h.Deref(); errors.Is(err, mpointer.ErrNullTarget) {
	    // handle was never bound
	}

# Registries

Handles use registry.Default unless WithRegistry is given. See package
registry for reclaim modes, metrics, tracing and the sweep journal.
*/
package mpointer
