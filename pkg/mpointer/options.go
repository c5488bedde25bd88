package mpointer

import "github.com/randalmurphal/mpointer/pkg/mpointer/registry"

// handleOptions holds handle construction settings.
type handleOptions struct {
	registry *registry.Registry
}

// HandleOption configures New.
type HandleOption func(*handleOptions)

// WithRegistry binds the handle to reg instead of the process-wide registry.
// Default: registry.Default()
//
// Example:
//
//	reg := registry.New(registry.WithName("scratch"))
//	h := mpointer.New[int](mpointer.WithRegistry(reg))
func WithRegistry(reg *registry.Registry) HandleOption {
	return func(o *handleOptions) {
		if reg != nil {
			o.registry = reg
		}
	}
}

func resolveOptions(opts []HandleOption) handleOptions {
	var o handleOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = registry.Default()
	}
	return o
}
