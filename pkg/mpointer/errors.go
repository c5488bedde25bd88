package mpointer

import (
	"errors"
	"fmt"

	"github.com/randalmurphal/mpointer/pkg/mpointer/registry"
)

// Sentinel errors for handle access.
var (
	// ErrNullTarget indicates access through a handle that was never bound.
	ErrNullTarget = errors.New("null target")

	// ErrReleased indicates access through a handle after its own Release.
	ErrReleased = errors.New("handle released")

	// ErrFreed indicates the registry already freed the allocation the handle
	// points to, typically after MarkReclaimable and a Sweep.
	ErrFreed = errors.New("allocation freed")
)

// AccessError wraps a failed handle access with the operation and identity.
type AccessError struct {
	// Op is the operation that failed ("deref", "load", "store", "assign").
	Op string
	// ID is the handle's identity, 0 when unbound.
	ID registry.ID
	// Err is one of the sentinel errors above.
	Err error
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	return fmt.Sprintf("%s handle %d: %v", e.Op, e.ID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AccessError) Unwrap() error {
	return e.Err
}
