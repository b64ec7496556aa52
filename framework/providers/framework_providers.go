package providers

import (
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/km-arc/go-ioc/framework/config"
	"github.com/km-arc/go-ioc/framework/container"
	"github.com/km-arc/go-ioc/framework/routing"
	"github.com/km-arc/go-ioc/framework/scope"
)

// ── ConfigServiceProvider ─────────────────────────────────────────────────────

// ConfigServiceProvider loads the application configuration from .env and
// binds it into the container as "config".
//
// Bound abstracts:
//   - "config"        → *config.Config
//   - "configuration" → alias of "config"
type ConfigServiceProvider struct {
	container.BaseProvider
	EnvFiles []string
}

func (p *ConfigServiceProvider) Register(app *container.Container) {
	envFiles := p.EnvFiles
	app.Singleton("config", func(c *container.Container) (any, error) {
		return config.Load(envFiles...), nil
	})
	app.Alias("config", "configuration")
}

// ── LoggerServiceProvider ─────────────────────────────────────────────────────

// LoggerServiceProvider builds the application's zerolog logger from the
// Log section of the configuration.
//
// Bound abstracts:
//   - "log" → zerolog.Logger
type LoggerServiceProvider struct {
	container.BaseProvider
}

func (p *LoggerServiceProvider) Register(app *container.Container) {
	app.Singleton("log", func(c *container.Container) (any, error) {
		cfg, err := container.TryResolve[*config.Config](c, "config")
		if err != nil {
			return nil, err
		}
		return BuildLogger(cfg), nil
	})
}

// BuildLogger constructs a zerolog.Logger from the Log config section.
// Unknown level strings fall back to info.
func BuildLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var w io.Writer = os.Stderr
	if cfg.Log.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	return zerolog.New(w).Level(level).With().
		Timestamp().
		Str("app", cfg.App.Name).
		Logger()
}

// ── ScopeServiceProvider ──────────────────────────────────────────────────────

// ScopeServiceProvider registers the scoped-resource infrastructure: the
// resource catalog scopes acquire from, the scope metrics and the prometheus
// registry backing them.
//
// Bound abstracts:
//   - "scope.resources" → *scope.ResourceSet
//   - "scope.metrics"   → *scope.Metrics
//   - "metrics.registry" → *prometheus.Registry
type ScopeServiceProvider struct {
	container.BaseProvider
}

func (p *ScopeServiceProvider) Register(app *container.Container) {
	app.Singleton("metrics.registry", func(*container.Container) (any, error) {
		return prometheus.NewRegistry(), nil
	})
	app.Singleton("scope.metrics", func(c *container.Container) (any, error) {
		reg, err := container.TryResolve[*prometheus.Registry](c, "metrics.registry")
		if err != nil {
			return nil, err
		}
		return scope.NewMetrics(reg), nil
	})
	app.Singleton("scope.resources", func(c *container.Container) (any, error) {
		log, err := container.TryResolve[zerolog.Logger](c, "log")
		if err != nil {
			return nil, err
		}
		return scope.NewResourceSet(log), nil
	})
}

// ── RoutingServiceProvider ────────────────────────────────────────────────────

// RoutingServiceProvider registers the HTTP router, wired to log requests
// through the application logger.
//
// Bound abstracts:
//   - "router" → *routing.Router
type RoutingServiceProvider struct {
	container.BaseProvider
}

func (p *RoutingServiceProvider) Register(app *container.Container) {
	app.Singleton("router", func(c *container.Container) (any, error) {
		log, err := container.TryResolve[zerolog.Logger](c, "log")
		if err != nil {
			return nil, err
		}
		return routing.NewWithLogger(log), nil
	})
}

// ── RedisServiceProvider ──────────────────────────────────────────────────────

// RedisServiceProvider registers the shared redis client. It is deferred:
// the client is not built until "redis" is first resolved, so applications
// that never touch redis pay nothing for it.
//
// Bound abstracts:
//   - "redis" → *redis.Client
type RedisServiceProvider struct {
	container.BaseProvider
}

func (p *RedisServiceProvider) Register(app *container.Container) {
	app.Singleton("redis", func(c *container.Container) (any, error) {
		cfg, err := container.TryResolve[*config.Config](c, "config")
		if err != nil {
			return nil, err
		}
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), nil
	})
}

func (p *RedisServiceProvider) Provides() []string { return []string{"redis"} }
func (p *RedisServiceProvider) IsDeferred() bool   { return true }
