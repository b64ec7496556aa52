package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/container"
	gohttp "github.com/km-arc/go-ioc/framework/http"
	"github.com/km-arc/go-ioc/framework/providers"
	"github.com/km-arc/go-ioc/framework/routing"
	"github.com/km-arc/go-ioc/framework/scope"
)

// Application is the top-level application container. It embeds the IoC
// Container and ProviderRegistry so user code can call app.Bind(),
// app.Singleton(), app.Register() directly.
type Application struct {
	*container.Container
	Providers *container.ProviderRegistry

	cfg *config.Config
	log zerolog.Logger
}

// New creates and bootstraps the application: configuration and logger are
// built eagerly (the container needs both before anything registers), then
// the framework core providers are registered.
//
//	app := app.New()
//	app.Router().Get("/", handler)
//	app.Run()
func New(envFiles ...string) *Application {
	cfg := config.Load(envFiles...)
	log := providers.BuildLogger(cfg)

	opts := []container.Option{container.WithLogger(log)}
	if cfg.Scope.StrictRebinding {
		opts = append(opts, container.WithStrictRebinding())
	}
	c := container.New(opts...)
	c.Instance("config", cfg)
	c.Alias("config", "configuration")
	c.Instance("log", log)

	registry := container.NewProviderRegistry(c)
	app := &Application{
		Container: c,
		Providers: registry,
		cfg:       cfg,
		log:       log,
	}

	registry.Register(&providers.ScopeServiceProvider{})
	registry.Register(&providers.RoutingServiceProvider{})
	registry.Register(&providers.RedisServiceProvider{})

	return app
}

// Register adds a ServiceProvider to the application.
func (a *Application) Register(provider container.ServiceProvider) {
	a.Providers.Register(provider)
}

// Boot runs the Boot() phase on all providers.
func (a *Application) Boot() {
	a.Providers.Boot()
}

// ── Accessors ────────────────────────────────────────────────────────────────

// Config returns the application configuration.
func (a *Application) Config() *config.Config { return a.cfg }

// Log returns the application logger.
func (a *Application) Log() zerolog.Logger { return a.log }

// Router resolves *routing.Router from the container.
func (a *Application) Router() *routing.Router {
	return container.Resolve[*routing.Router](a.Container, "router")
}

// Resources resolves the shared resource catalog. Applications register
// their resources into it during bootstrap:
//
//	app.Resources().Register(scope.Resource{Name: "db.tx", ...})
func (a *Application) Resources() *scope.ResourceSet {
	return container.Resolve[*scope.ResourceSet](a.Container, "scope.resources")
}

// Metrics resolves the scope metrics sink.
func (a *Application) Metrics() *scope.Metrics {
	return container.Resolve[*scope.Metrics](a.Container, "scope.metrics")
}

// ── Scopes ───────────────────────────────────────────────────────────────────

// NewScope creates a single-use scope over the application container and
// resource catalog.
//
//	err := app.NewScope().
//	    Context(map[string]any{"job": "raffle"}).
//	    Inject("db.tx").
//	    Run(ctx, task)
func (a *Application) NewScope() *scope.Scope {
	return scope.New(a.Container, a.Resources(),
		scope.WithLogger(a.log),
		scope.WithMetrics(a.Metrics()),
	)
}

// ScopeMiddleware builds an HTTP middleware that runs every request in its
// own scope, acquiring the named resources.
func (a *Application) ScopeMiddleware(ids ...string) *gohttp.ScopeMiddleware {
	return gohttp.NewScopeMiddleware(a.Container, a.Resources(),
		gohttp.WithInject(ids...),
		gohttp.WithLogger(a.log),
		gohttp.WithMetrics(a.Metrics()),
	)
}

// MetricsHandler returns an http.Handler exposing the application's
// prometheus registry, for mounting at /metrics.
func (a *Application) MetricsHandler() http.Handler {
	reg := container.Resolve[*prometheus.Registry](a.Container, "metrics.registry")
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// ── Serving ──────────────────────────────────────────────────────────────────

// Run boots the application (if needed) and starts the HTTP server on
// APP_PORT. It blocks until the server stops.
func (a *Application) Run() error {
	if !a.Providers.Booted() {
		a.Boot()
	}
	router := a.Router()
	addr := ":" + a.cfg.App.Port
	a.log.Info().
		Str("addr", addr).
		Str("env", a.cfg.App.Env).
		Msgf("%s listening", a.cfg.App.Name)
	return http.ListenAndServe(addr, router)
}

// Environment returns the APP_ENV value.
func (a *Application) Environment() string { return a.cfg.App.Env }
func (a *Application) IsLocal() bool       { return a.Environment() == "local" }
func (a *Application) IsProduction() bool  { return a.Environment() == "production" }
func (a *Application) IsTesting() bool     { return a.Environment() == "testing" }
func (a *Application) IsDebug() bool       { return a.cfg.App.Debug }

// Controller is an embeddable base for HTTP controllers.
type Controller struct{}

func (c *Controller) Request(r *http.Request) *gohttp.Request {
	return gohttp.NewRequest(r)
}
func (c *Controller) Response(w http.ResponseWriter) *gohttp.Response {
	return gohttp.NewResponse(w)
}
