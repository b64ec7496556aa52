package scope

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/km-arc/go-ioc/framework/container"
)

// Acquirer is implemented by resource instances with an explicit acquire
// step. When a freshly constructed instance implements it, the scope calls
// Acquire before handing the instance to any consumer; a failure aborts the
// scope before the unit of work runs.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// Releaser is the deferred release action for one acquired resource instance.
// It runs after the scope's unit of work completes, on every outcome.
type Releaser func(ctx context.Context) error

// Resource describes one acquirable dependency: how to construct an instance
// and how to build the deferred release for it.
type Resource struct {
	// Name is the public identifier consumers resolve within a scope.
	Name string

	// New constructs the raw instance. It runs at most once per scope;
	// every consumer in that scope shares the result.
	New container.Factory

	// DisposeWith returns the deferred release for an acquired instance.
	// Called at most once per resource per scope.
	DisposeWith func(instance any) Releaser
}

// ResourceSet is the process-wide catalog of resource descriptors. Register
// everything at process start, before the first scope opens; descriptors are
// immutable once registered.
type ResourceSet struct {
	log zerolog.Logger

	mu     sync.RWMutex
	byName map[string]Resource
	order  []string
}

// NewResourceSet creates an empty catalog.
func NewResourceSet(log zerolog.Logger) *ResourceSet {
	return &ResourceSet{
		log:    log,
		byName: make(map[string]Resource),
	}
}

// Register adds a descriptor to the catalog. An empty name, nil constructor
// or nil disposer factory is a registration-phase programming error and
// panics. Re-registering a name replaces the prior descriptor and logs a
// warning; registration order is preserved from the first registration.
func (rs *ResourceSet) Register(r Resource) {
	if r.Name == "" {
		panic("scope: resource with empty name")
	}
	if r.New == nil {
		panic("scope: resource [" + r.Name + "] has no constructor")
	}
	if r.DisposeWith == nil {
		panic("scope: resource [" + r.Name + "] has no disposer factory")
	}

	rs.mu.Lock()
	_, replaced := rs.byName[r.Name]
	rs.byName[r.Name] = r
	if !replaced {
		rs.order = append(rs.order, r.Name)
	}
	rs.mu.Unlock()

	if replaced {
		rs.log.Warn().Str("resource", r.Name).Msg("scope: resource re-registered, descriptor replaced")
	} else {
		rs.log.Debug().Str("resource", r.Name).Msg("scope: resource registered")
	}
}

// Get returns the descriptor registered under name.
func (rs *ResourceSet) Get(name string) (Resource, bool) {
	if rs == nil {
		return Resource{}, false
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	r, ok := rs.byName[name]
	return r, ok
}

// Names returns the registered resource names in registration order.
func (rs *ResourceSet) Names() []string {
	if rs == nil {
		return nil
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]string, len(rs.order))
	copy(out, rs.order)
	return out
}

// Len returns the number of registered resources.
func (rs *ResourceSet) Len() int {
	if rs == nil {
		return 0
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.order)
}
