// Package plugin implements C6: a compile-time kind -> implementation
// registry. spec.md §9 explicitly redirects the original's dynamic
// importlib/SourceFileLoader-based loading into a Go-idiomatic
// init()-time registration scheme — the same shape database/sql drivers
// use. Built-in kinds register themselves from the plugins/ tree; a second,
// lower-priority namespace (RegisterExternal) stands in for the original's
// configurable search roots, since dynamic loading by filesystem path is out
// of scope (spec.md Non-goals).
package plugin

import (
	"fmt"
	"sync"

	"github.com/daqlab/onlinemonitor/models"
)

// Factory constructs one plugin instance from its resolved WorkerConfig.
// What it returns depends on the kind: the Manager expects a
// transceiver.Interpreter for a converter, a producer.DataSource for a
// producer and a receiver.Handler for a receiver, and checks this with a
// type assertion.
type Factory func(cfg models.WorkerConfig) (any, error)

// Registry is a kind -> Factory map with two priority tiers: built-ins
// (Register) and externals (RegisterExternal). Resolve checks built-ins
// first.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]Factory
	external map[string]Factory
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		builtins: make(map[string]Factory),
		external: make(map[string]Factory),
	}
}

// Register adds a built-in factory under kind. Intended to be called from
// plugin package init() functions; panics on a duplicate kind since that
// indicates a programming error, not a runtime condition.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builtins[kind]; exists {
		panic(fmt.Sprintf("plugin: duplicate built-in registration for kind %q", kind))
	}
	r.builtins[kind] = factory
}

// RegisterExternal adds a lower-priority factory under kind, standing in for
// a plugin discovered via a configured search root. A built-in of the same
// kind always wins.
func (r *Registry) RegisterExternal(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.external[kind] = factory
}

// Resolve returns the Factory registered for kind, preferring built-ins.
func (r *Registry) Resolve(kind string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.builtins[kind]; ok {
		return f, nil
	}
	if f, ok := r.external[kind]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("plugin: unknown kind %q", kind)
}

// Default is the process-wide registry built-in plugins register themselves
// into via init(). Tests and embedders that want isolation can construct
// their own Registry instead.
var Default = NewRegistry()
