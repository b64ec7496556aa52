package container

import (
	"slices"
	"sync"
)

// ── ServiceProvider interface ─────────────────────────────────────────────────

// ServiceProvider mirrors Laravel's Illuminate\Support\ServiceProvider.
//
// Every provider must implement at minimum Register().
// Boot() is called after ALL providers have been registered, making it safe
// to resolve other bindings inside Boot().
//
//	type StoreProvider struct{ container.BaseProvider }
//
//	func (p *StoreProvider) Register(app *container.Container) {
//	    app.Singleton("store", func(c *container.Container) (any, error) {
//	        return OpenStore(container.Resolve[*config.Config](c, "config"))
//	    })
//	}
//
//	func (p *StoreProvider) Boot(app *container.Container) {
//	    store := container.Resolve[*Store](app, "store")
//	    store.Warm()
//	}
type ServiceProvider interface {
	// Register binds services into the container.
	// Do NOT resolve other bindings here — use Boot() for that.
	Register(app *Container)

	// Boot is called after all providers are registered.
	// Safe to resolve and use any binding here.
	Boot(app *Container)

	// Provides returns the list of abstract keys this provider registers.
	// Used for deferred (lazy) provider loading.
	// Return nil / empty slice if the provider is always eager.
	Provides() []string

	// IsDeferred returns true if this provider should be loaded lazily —
	// only when one of its Provides() abstracts is first resolved.
	IsDeferred() bool
}

// ── BaseProvider ──────────────────────────────────────────────────────────────

// BaseProvider is an embeddable struct that provides no-op implementations
// of Boot(), Provides(), and IsDeferred().
// Embed it in your provider and only override what you need.
//
//	type MyProvider struct{ container.BaseProvider }
//	func (p *MyProvider) Register(app *container.Container) { ... }
type BaseProvider struct{}

func (p *BaseProvider) Boot(_ *Container)  {}
func (p *BaseProvider) Provides() []string { return nil }
func (p *BaseProvider) IsDeferred() bool   { return false }

// ── ProviderRegistry ──────────────────────────────────────────────────────────

// ProviderRegistry manages registration and booting of ServiceProviders,
// including deferred (lazy) providers.
//
// It mirrors the behaviour of Laravel's Application::registerConfiguredProviders
// and Application::bootProviders. Unlike eager registration, deferred loading
// is triggered by resolution and may happen on any goroutine, so the registry
// guards its own state.
type ProviderRegistry struct {
	app *Container

	mu        sync.Mutex
	eager     []ServiceProvider
	deferred  map[string]ServiceProvider // abstract → provider
	seen      map[ServiceProvider]bool
	activated map[ServiceProvider]bool
	booted    bool
}

// NewProviderRegistry creates a registry bound to app.
func NewProviderRegistry(app *Container) *ProviderRegistry {
	return &ProviderRegistry{
		app:       app,
		deferred:  make(map[string]ServiceProvider),
		seen:      make(map[ServiceProvider]bool),
		activated: make(map[ServiceProvider]bool),
	}
}

// Register adds a provider and calls its Register() method (unless deferred).
//
//	registry.Register(&StoreProvider{})
func (r *ProviderRegistry) Register(provider ServiceProvider) {
	r.mu.Lock()
	if r.seen[provider] {
		r.mu.Unlock()
		return
	}
	r.seen[provider] = true

	if provider.IsDeferred() {
		for _, abstract := range provider.Provides() {
			r.deferred[abstract] = provider
		}
		r.mu.Unlock()
		r.bindDeferred(provider)
		return
	}

	r.eager = append(r.eager, provider)
	booted := r.booted
	r.mu.Unlock()

	provider.Register(r.app)
	// If already booted, boot this provider immediately.
	if booted {
		provider.Boot(r.app)
	}
}

// bindDeferred installs an interceptor binding for each deferred abstract.
// The first resolution triggers the real registration + boot.
func (r *ProviderRegistry) bindDeferred(provider ServiceProvider) {
	for _, abstract := range provider.Provides() {
		abs := abstract
		r.app.Bind(abs, func(c *Container) (any, error) {
			r.loadDeferred(provider)
			return c.TryMake(abs)
		})
	}
}

// loadDeferred performs the one-time real registration of a deferred
// provider. The interceptor bindings are forgotten first so the provider's
// own Bind calls never count as rebinds.
func (r *ProviderRegistry) loadDeferred(provider ServiceProvider) {
	r.mu.Lock()
	if r.activated[provider] {
		r.mu.Unlock()
		return
	}
	r.activated[provider] = true
	provides := provider.Provides()
	for _, abstract := range provides {
		delete(r.deferred, abstract)
	}
	booted := r.booted
	r.mu.Unlock()

	for _, abstract := range provides {
		r.app.Forget(abstract)
	}
	provider.Register(r.app)
	if booted {
		provider.Boot(r.app)
	}
}

// Boot calls Boot() on all eager providers.
// Must be called after ALL providers have been registered.
func (r *ProviderRegistry) Boot() {
	r.mu.Lock()
	if r.booted {
		r.mu.Unlock()
		return
	}
	r.booted = true
	eager := slices.Clone(r.eager)
	r.mu.Unlock()

	for _, provider := range eager {
		provider.Boot(r.app)
	}
}

// Booted returns true if Boot() has been called.
func (r *ProviderRegistry) Booted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.booted
}

// Providers returns all registered eager providers.
func (r *ProviderRegistry) Providers() []ServiceProvider {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.eager)
}
