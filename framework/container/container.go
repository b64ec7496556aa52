package container

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// ── Binding types ─────────────────────────────────────────────────────────────

// Factory is a function that builds a concrete value from the container.
// Returning an error aborts the resolution that triggered it.
type Factory func(c *Container) (any, error)

// binding holds a registered factory and whether it is a singleton.
type binding struct {
	factory   Factory
	singleton bool
}

// extender wraps an already-resolved instance with decorator logic.
type extender func(instance any, c *Container) any

// ErrNotBound is wrapped by TryMake when no binding exists for an identifier.
var ErrNotBound = errors.New("not bound")

// ── Container ─────────────────────────────────────────────────────────────────

// Container is the shared binding registry: it maps string identifiers to
// value producers and owns the singleton instance cache.
//
// It supports:
//   - Bind / Singleton / Instance / Alias / Forget
//   - Make / TryMake / Resolve / TryResolve (generic)
//   - Tags (group multiple abstractions under one tag)
//   - Extend (decorate / wrap resolved instances)
//   - Contextual binding (when A needs B, give it C)
//   - Rebound callbacks and resolved event callbacks
//   - Snapshot / Restore (checkpoint and roll back the whole binding state)
//
// At most one registration exists per canonical identifier at any instant:
// re-binding replaces the previous entry. The replacement is logged and
// allowed by default; with WithStrictRebinding it panics instead, the
// recommended setting outside tests and scoped overlays.
//
// All methods are safe for concurrent use. Begin additionally serializes
// checkpoint windows across goroutines: a second Begin blocks until the
// first transaction finishes, so checkpoint → overlay → rollback sequences
// never interleave. Plain Snapshot/Restore nest but do not serialize.
type Container struct {
	mu sync.RWMutex

	// abstract → binding
	bindings map[string]*binding

	// abstract → resolved singleton instance
	instances map[string]any

	// alias → abstract (canonical key)
	aliases map[string]string

	// abstract → extender funcs
	extenders map[string][]extender

	// tag → []abstract
	tags map[string][]string

	// contextual: when[consumer][abstract] = factory
	contextual map[string]map[string]Factory

	// rebound callbacks: abstract → []func(any)
	reboundCallbacks map[string][]func(any)

	// resolved callbacks: []func(abstract, instance)
	afterResolving []func(string, any)

	// stack of abstracts currently being resolved (for contextual lookup)
	buildStack []string

	// checkpoint stack, managed by Snapshot / Restore
	snapshots []*checkpoint

	// overlayMu serializes Snapshot…Restore windows across goroutines.
	overlayMu sync.Mutex

	log    zerolog.Logger
	strict bool
}

// Option configures a Container at construction time.
type Option func(*Container)

// WithLogger attaches a structured logger. Rebinds, forgets and restores
// are reported through it. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Container) { c.log = log }
}

// WithStrictRebinding makes re-binding an already-bound identifier panic
// instead of replacing the entry.
func WithStrictRebinding() Option {
	return func(c *Container) { c.strict = true }
}

// New creates an empty container.
func New(opts ...Option) *Container {
	c := &Container{
		bindings:         make(map[string]*binding),
		instances:        make(map[string]any),
		aliases:          make(map[string]string),
		extenders:        make(map[string][]extender),
		tags:             make(map[string][]string),
		contextual:       make(map[string]map[string]Factory),
		reboundCallbacks: make(map[string][]func(any)),
		log:              zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// Bind the container to itself so factories can look it up by name.
	c.instances["container"] = c
	return c
}

// ── Registration ──────────────────────────────────────────────────────────────

// Bind registers a transient (new instance each Make) factory.
//
//	c.Bind("audit", func(c *container.Container) (any, error) {
//	    return NewAuditTrail(container.Resolve[*Clock](c, "clock")), nil
//	})
func (c *Container) Bind(abstract string, factory Factory) {
	c.bind(abstract, factory, false)
}

// Singleton registers a factory whose result is cached after first resolution.
//
//	c.Singleton("store", func(c *container.Container) (any, error) {
//	    return OpenStore(container.Resolve[*config.Config](c, "config"))
//	})
func (c *Container) Singleton(abstract string, factory Factory) {
	c.bind(abstract, factory, true)
}

// Instance registers a pre-built value as a constant binding.
//
//	c.Instance("config", cfg)
func (c *Container) Instance(abstract string, instance any) {
	c.mu.Lock()
	key := c.canonical(abstract)
	wasBound := c.isBoundLocked(key)
	if wasBound && c.strict {
		c.mu.Unlock()
		panic(fmt.Sprintf("container: [%s] is already bound", abstract))
	}
	delete(c.bindings, key)
	c.instances[key] = instance
	watched := len(c.reboundCallbacks[key]) > 0
	c.mu.Unlock()

	if wasBound {
		c.log.Warn().Str("abstract", abstract).Msg("container: rebinding, previous registration replaced")
		if watched {
			c.fireRebound(key, instance)
		}
	}
}

// bind is the internal registration helper shared by Bind and Singleton.
func (c *Container) bind(abstract string, factory Factory, singleton bool) {
	c.mu.Lock()
	key := c.canonical(abstract)
	wasBound := c.isBoundLocked(key)
	if wasBound && c.strict {
		c.mu.Unlock()
		panic(fmt.Sprintf("container: [%s] is already bound", abstract))
	}
	// Drop any cached instance so the new factory takes effect.
	delete(c.instances, key)
	c.bindings[key] = &binding{factory: factory, singleton: singleton}
	watched := len(c.reboundCallbacks[key]) > 0
	c.mu.Unlock()

	if wasBound {
		c.log.Warn().Str("abstract", abstract).Msg("container: rebinding, previous registration replaced")
		if watched {
			// Resolve eagerly only when somebody listens for the rebind.
			if inst, err := c.TryMake(abstract); err == nil {
				c.fireRebound(key, inst)
			}
		}
	}
}

// Alias registers an alternative name for an abstract. Resolving the alias
// is identical to resolving the canonical identifier, instance cache included.
//
//	c.Alias("store.lease", "lease")
func (c *Container) Alias(abstract, alias string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if abstract == alias {
		panic(fmt.Sprintf("container: [%s] is aliased to itself", abstract))
	}
	c.aliases[alias] = c.canonical(abstract)
}

// ── Contextual Binding ────────────────────────────────────────────────────────

// When starts a contextual binding chain.
//
//	c.When("report").Needs("clock").Give(func(c *container.Container) (any, error) {
//	    return NewFrozenClock(), nil
//	})
func (c *Container) When(consumer string) *ContextualBuilder {
	return &ContextualBuilder{container: c, consumer: consumer}
}

// contextualFor returns the contextual factory for (consumer, abstract), or
// nil. Caller must hold c.mu.
func (c *Container) contextualFor(consumer, abstract string) Factory {
	if m, ok := c.contextual[consumer]; ok {
		return m[abstract]
	}
	return nil
}

// ── Extend ────────────────────────────────────────────────────────────────────

// Extend decorates the resolved instance of an abstract. If the abstract was
// already resolved as a singleton the new extender is applied to the cached
// instance immediately.
//
//	c.Extend("store", func(instance any, c *container.Container) any {
//	    return NewTracingStore(instance.(*Store))
//	})
func (c *Container) Extend(abstract string, fn extender) {
	c.mu.Lock()
	key := c.canonical(abstract)
	c.extenders[key] = append(c.extenders[key], fn)
	inst, resolved := c.instances[key]
	c.mu.Unlock()

	if !resolved {
		return
	}
	// Earlier extenders already ran when the instance was resolved,
	// so only the new one applies here.
	extended := fn(inst, c)

	c.mu.Lock()
	c.instances[key] = extended
	watched := len(c.reboundCallbacks[key]) > 0
	c.mu.Unlock()

	if watched {
		c.fireRebound(key, extended)
	}
}

// ── Tags ──────────────────────────────────────────────────────────────────────

// Tag associates multiple abstracts under a named group.
//
//	c.Tag([]string{"store.lease", "redis.conn"}, "resources")
func (c *Container) Tag(abstracts []string, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[tag] = append(c.tags[tag], abstracts...)
}

// Tagged resolves all abstracts registered under a tag, in tagging order.
func (c *Container) Tagged(tag string) ([]any, error) {
	c.mu.RLock()
	abstracts := make([]string, len(c.tags[tag]))
	copy(abstracts, c.tags[tag])
	c.mu.RUnlock()

	result := make([]any, 0, len(abstracts))
	for _, abs := range abstracts {
		v, err := c.TryMake(abs)
		if err != nil {
			return nil, fmt.Errorf("tagged [%s]: %w", tag, err)
		}
		result = append(result, v)
	}
	return result, nil
}

// ── Resolution ────────────────────────────────────────────────────────────────

// Make resolves an abstract from the container, panicking on failure.
// Use TryMake when the caller wants to handle resolution errors.
//
//	store := c.Make("store").(*Store)
func (c *Container) Make(abstract string) any {
	v, err := c.TryMake(abstract)
	if err != nil {
		panic(fmt.Sprintf("container: %v", err))
	}
	return v
}

// TryMake resolves an abstract from the container. An unbound identifier
// yields an error wrapping ErrNotBound; a failing factory has its error
// returned, wrapped with the identifier being built.
func (c *Container) TryMake(abstract string) (any, error) {
	c.mu.RLock()
	key := c.canonical(abstract)

	// A contextual binding for the consumer currently being built takes
	// precedence even over a cached instance, as in Laravel.
	var contextual Factory
	if n := len(c.buildStack); n > 0 {
		contextual = c.contextualFor(c.buildStack[n-1], key)
	}

	if contextual == nil {
		if inst, ok := c.instances[key]; ok {
			c.mu.RUnlock()
			return inst, nil
		}
	}

	b, bound := c.bindings[key]
	c.mu.RUnlock()

	if contextual != nil {
		return c.runFactory(key, contextual, false)
	}
	if !bound {
		return nil, fmt.Errorf("no binding registered for [%s]: %w", abstract, ErrNotBound)
	}
	return c.runFactory(key, b.factory, b.singleton)
}

// runFactory executes a factory, optionally caching the result.
func (c *Container) runFactory(key string, f Factory, singleton bool) (any, error) {
	c.mu.Lock()
	c.buildStack = append(c.buildStack, key)
	c.mu.Unlock()
	// Popped via defer so a panicking factory cannot strand its entry.
	defer func() {
		c.mu.Lock()
		c.buildStack = c.buildStack[:len(c.buildStack)-1]
		c.mu.Unlock()
	}()

	instance, err := f(c)
	if err != nil {
		return nil, fmt.Errorf("building [%s]: %w", key, err)
	}

	c.mu.RLock()
	exts := c.extenders[key]
	c.mu.RUnlock()
	for _, ext := range exts {
		instance = ext(instance, c)
	}

	if singleton {
		c.mu.Lock()
		c.instances[key] = instance
		c.mu.Unlock()
	}

	c.fireAfterResolving(key, instance)
	return instance, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// Bound returns true if an abstract has been registered.
func (c *Container) Bound(abstract string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isBoundLocked(c.canonical(abstract))
}

// isBoundLocked reports whether the canonical key has a binding or an
// instance. Caller must hold c.mu.
func (c *Container) isBoundLocked(key string) bool {
	_, hasBinding := c.bindings[key]
	_, hasInstance := c.instances[key]
	return hasBinding || hasInstance
}

// Resolved returns true if the abstract has been resolved at least once
// (or was registered as a pre-built instance).
func (c *Container) Resolved(abstract string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.instances[c.canonical(abstract)]
	return ok
}

// Forget removes all registrations for an abstract (binding + instance).
func (c *Container) Forget(abstract string) {
	c.mu.Lock()
	key := c.canonical(abstract)
	delete(c.bindings, key)
	delete(c.instances, key)
	c.mu.Unlock()
	c.log.Debug().Str("abstract", abstract).Msg("container: binding forgotten")
}

// Flush resets the entire container, pending snapshots included.
// Callbacks registered via Rebinding and AfterResolving survive.
func (c *Container) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = make(map[string]*binding)
	c.instances = make(map[string]any)
	c.aliases = make(map[string]string)
	c.extenders = make(map[string][]extender)
	c.tags = make(map[string][]string)
	c.contextual = make(map[string]map[string]Factory)
	c.snapshots = nil
}

// Bindings returns all registered abstract keys, for diagnostics.
func (c *Container) Bindings() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.bindings)+len(c.instances))
	for k := range c.bindings {
		out = append(out, k)
	}
	for k := range c.instances {
		if _, already := c.bindings[k]; !already {
			out = append(out, k)
		}
	}
	return out
}

// canonical resolves an alias to its canonical key. Caller must hold c.mu.
func (c *Container) canonical(abstract string) string {
	if target, ok := c.aliases[abstract]; ok {
		return target
	}
	return abstract
}

// ── Callbacks ─────────────────────────────────────────────────────────────────

// Rebinding registers a callback invoked whenever the abstract is re-bound.
// The callback receives the freshly resolved replacement.
func (c *Container) Rebinding(abstract string, cb func(any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := c.canonical(abstract)
	c.reboundCallbacks[key] = append(c.reboundCallbacks[key], cb)
}

// AfterResolving registers a callback fired after any abstract is resolved.
func (c *Container) AfterResolving(cb func(abstract string, instance any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.afterResolving = append(c.afterResolving, cb)
}

func (c *Container) fireRebound(key string, instance any) {
	c.mu.RLock()
	cbs := make([]func(any), len(c.reboundCallbacks[key]))
	copy(cbs, c.reboundCallbacks[key])
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(instance)
	}
}

func (c *Container) fireAfterResolving(key string, instance any) {
	c.mu.RLock()
	cbs := make([]func(string, any), len(c.afterResolving))
	copy(cbs, c.afterResolving)
	c.mu.RUnlock()
	for _, cb := range cbs {
		cb(key, instance)
	}
}

// ── Reflect helpers ───────────────────────────────────────────────────────────

// TypeKey returns the package-qualified type name of v, useful as a stable
// abstract key when an identifier should be a type token rather than a name.
//
//	key := container.TypeKey((*LeaseStore)(nil))  // "main.LeaseStore"
//	c.Singleton(key, factory)
func TypeKey(v any) string {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() + "." + t.Name()
}

// ── Generics helpers ──────────────────────────────────────────────────────────

// Resolve is a generic helper that calls Make and type-asserts the result.
//
//	cfg := container.Resolve[*config.Config](c, "config")
func Resolve[T any](c *Container, abstract string) T {
	instance := c.Make(abstract)
	typed, ok := instance.(T)
	if !ok {
		panic(fmt.Sprintf("container: Resolve[%T]: [%s] resolved to %T", *new(T), abstract, instance))
	}
	return typed
}

// TryResolve is like Resolve but reports failures as errors instead of
// panicking.
func TryResolve[T any](c *Container, abstract string) (T, error) {
	var zero T
	instance, err := c.TryMake(abstract)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("container: [%s] resolved to %T, want %T", abstract, instance, zero)
	}
	return typed, nil
}
