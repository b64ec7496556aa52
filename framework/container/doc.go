// Package container provides a Laravel-style IoC (Inversion of Control)
// container for Go: the shared binding registry underneath the scoped
// resource runtime.
//
// # Overview
//
// The container manages the instantiation and lifecycle of your application's
// dependencies. It supports transient bindings, singletons, pre-built
// instances, aliases, tags, contextual bindings, extension (decoration), and
// a snapshot/restore mechanism that checkpoints and rolls back the whole
// binding state.
//
// The registration API mirrors Laravel's Illuminate\Container\Container as
// closely as Go's type system allows. Because Go has no runtime constructor
// reflection, auto-wiring is replaced by explicit factory functions.
//
// # Container Lifecycle
//
//  1. Create: c := container.New(container.WithLogger(log))
//  2. Register providers: registry.Register(&MyProvider{})
//  3. Boot: registry.Boot()        — safe to resolve everything after this
//  4. Serve requests (scopes overlay and roll back bindings per unit of work)
//
// # Bindings
//
//	// Transient — new instance every Make()
//	c.Bind("report", func(c *container.Container) (any, error) {
//	    return &Report{}, nil
//	})
//
//	// Singleton — created once, reused
//	c.Singleton("store", func(c *container.Container) (any, error) {
//	    cfg := container.Resolve[*config.Config](c, "config")
//	    return OpenStore(cfg)
//	})
//
//	// Pre-built value
//	c.Instance("config", cfg)
//
//	// Alias
//	c.Alias("store.lease", "lease")
//
// Re-binding an already-bound identifier replaces the entry and logs a
// warning; with WithStrictRebinding it panics instead.
//
// # Resolving
//
//	// Untyped, panics on failure
//	raw := c.Make("store")
//
//	// Untyped, error-returning
//	raw, err := c.TryMake("store")
//
//	// Generic (preferred — no type assertion required)
//	store := container.Resolve[*Store](c, "store")
//	store, err := container.TryResolve[*Store](c, "store")
//
// # Snapshot / Restore
//
// Snapshot pushes a checkpoint of the binding state; Restore pops and
// reinstates it. Checkpoints nest like a stack. When a window of temporary
// bindings must be exclusive against concurrent mutators, Begin opens a
// transaction that holds the overlay lock until Commit or Rollback:
//
//	tx := c.Begin()
//	c.Bind("scope.ctx", ...)   // temporary
//	...
//	tx.Rollback()              // overlay gone, lock released
//
// The scope package drives this mechanism; application code rarely calls it
// directly.
//
// # Contextual Binding
//
//	c.When("report").
//	    Needs("clock").
//	    Give(func(c *container.Container) (any, error) { return NewFrozenClock(), nil })
//
// # Tags
//
//	c.Tag([]string{"store.lease", "redis.conn"}, "resources")
//	resources, err := c.Tagged("resources")  // []any
//
// # Extend / Decorate
//
//	c.Extend("store", func(instance any, c *container.Container) any {
//	    return &TracingStore{Inner: instance.(*Store)}
//	})
//
// # Service Providers
//
//	type AppServiceProvider struct{ container.BaseProvider }
//
//	func (p *AppServiceProvider) Register(app *container.Container) {
//	    app.Singleton("store", func(c *container.Container) (any, error) {
//	        cfg := container.Resolve[*config.Config](c, "config")
//	        return OpenStore(cfg)
//	    })
//	}
//
//	func (p *AppServiceProvider) Boot(app *container.Container) {
//	    // safe to resolve other bindings here
//	}
//
//	registry := container.NewProviderRegistry(c)
//	registry.Register(&AppServiceProvider{})
//	registry.Boot()
//
// # Deferred Providers
//
//	type HeavyProvider struct{ container.BaseProvider }
//
//	func (p *HeavyProvider) IsDeferred() bool   { return true }
//	func (p *HeavyProvider) Provides() []string { return []string{"heavy"} }
//	func (p *HeavyProvider) Register(app *container.Container) {
//	    app.Singleton("heavy", func(c *container.Container) (any, error) {
//	        return heavySetup() // only called on first app.Make("heavy")
//	    })
//	}
package container
