package scope

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ContextKey is the identifier a scope's Context is bound under during the
// overlay window. Declare it with Inject to receive the context in the task,
// or resolve it from a factory that runs inside the scope.
const ContextKey = "scope.ctx"

var (
	// ErrDuplicateContextKey is wrapped by SetOnce when a key is written twice.
	ErrDuplicateContextKey = errors.New("scope: duplicate context key")

	// ErrMissingContextKey is wrapped by Get when a key was never set.
	ErrMissingContextKey = errors.New("scope: missing context key")
)

// Context is a write-once key/value store owned by exactly one scope. It
// carries ambient per-scope data (request metadata, trace ids) to objects
// resolved within that scope. Keys have no deletion operation; the context
// lives and dies with its scope.
type Context struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewContext creates an empty scope context.
func NewContext() *Context {
	return &Context{entries: make(map[string]any)}
}

// SetOnce stores value under name. Writing a name twice fails and leaves the
// first value untouched.
func (sc *Context) SetOnce(name string, value any) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, exists := sc.entries[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateContextKey, name)
	}
	sc.entries[name] = value
	return nil
}

// Get returns the value stored under name, failing if it was never set.
func (sc *Context) Get(name string) (any, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	v, ok := sc.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingContextKey, name)
	}
	return v, nil
}

// MustGet is Get for keys the caller knows are set; it panics otherwise.
func (sc *Context) MustGet(name string) any {
	v, err := sc.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Has reports whether name has been set.
func (sc *Context) Has(name string) bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	_, ok := sc.entries[name]
	return ok
}

// Keys returns all set names, sorted.
func (sc *Context) Keys() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	keys := make([]string, 0, len(sc.entries))
	for k := range sc.entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Value reads a context entry with its concrete type.
//
//	requestID, err := scope.Value[string](sc, "http.request_id")
func Value[T any](sc *Context, name string) (T, error) {
	var zero T
	v, err := sc.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("scope: context key %q holds %T, want %T", name, v, zero)
	}
	return typed, nil
}
