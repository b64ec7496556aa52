package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/km-arc/go-ioc/framework/app"
	"github.com/km-arc/go-ioc/framework/container"
	"github.com/km-arc/go-ioc/framework/scope"
)

// pinEnv neutralises host environment so each test starts from defaults.
func pinEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_NAME", "APP_ENV", "APP_DEBUG", "APP_PORT",
		"LOG_LEVEL", "LOG_PRETTY", "SCOPE_STRICT_REBINDING",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("LOG_PRETTY", "false")
}

func newApp(t *testing.T) *app.Application {
	t.Helper()
	return app.New("testdata/empty.env")
}

func TestNew_BootstrapsCoreBindings(t *testing.T) {
	pinEnv(t)
	a := newApp(t)

	for _, abstract := range []string{
		"config", "configuration", "log",
		"scope.resources", "scope.metrics", "metrics.registry",
		"router", "redis",
	} {
		if !a.Bound(abstract) {
			t.Errorf("expected %q to be bound after bootstrap", abstract)
		}
	}

	if a.Config() == nil {
		t.Fatal("Config() should return the loaded configuration")
	}
	if a.Config().App.Name != "go-ioc" {
		t.Errorf("App.Name = %q, want default", a.Config().App.Name)
	}
	if a.Router() == nil {
		t.Fatal("Router() should resolve")
	}
	if a.Resources() == nil {
		t.Fatal("Resources() should resolve")
	}
}

func TestNew_StrictRebindingInProduction(t *testing.T) {
	pinEnv(t)
	t.Setenv("APP_ENV", "production")
	a := newApp(t)

	if !a.IsProduction() {
		t.Fatal("expected production environment")
	}

	defer func() {
		if recover() == nil {
			t.Error("rebinding a core service in production should panic")
		}
	}()
	a.Singleton("router", func(*container.Container) (any, error) { return nil, nil })
}

func TestNew_LaxRebindingOutsideProduction(t *testing.T) {
	pinEnv(t)
	a := newApp(t)

	// Local default: replacing a binding is allowed (and logged).
	a.Singleton("router", func(*container.Container) (any, error) { return nil, nil })
}

func TestApplication_NewScope_AcquiresAndReleases(t *testing.T) {
	pinEnv(t)
	a := newApp(t)

	var acquired, released bool
	a.Resources().Register(scope.Resource{
		Name: "session",
		New: func(*container.Container) (any, error) {
			acquired = true
			return "session-1", nil
		},
		DisposeWith: func(any) scope.Releaser {
			return func(context.Context) error {
				released = true
				return nil
			}
		},
	})

	var got any
	err := a.NewScope().Inject("session").Run(context.Background(),
		func(ctx context.Context, deps ...any) error {
			got = deps[0]
			return nil
		})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !acquired || got != "session-1" {
		t.Errorf("resource not delivered to task: acquired=%v got=%v", acquired, got)
	}
	if !released {
		t.Error("resource should be released after the task")
	}
	if a.Bound("session") {
		t.Error("scope binding must not survive the run")
	}
}

func TestApplication_ScopeMiddleware_EndToEnd(t *testing.T) {
	pinEnv(t)
	a := newApp(t)

	released := false
	a.Resources().Register(scope.Resource{
		Name: "conn",
		New: func(*container.Container) (any, error) {
			return &struct{ open bool }{open: true}, nil
		},
		DisposeWith: func(any) scope.Releaser {
			return func(context.Context) error {
				released = true
				return nil
			}
		},
	})

	mw := a.ScopeMiddleware("conn")
	h := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d want 200", rec.Code)
	}
	if rec.Header().Get("X-Scope-ID") == "" {
		t.Error("expected X-Scope-ID header")
	}
	if !released {
		t.Error("request resource should be released")
	}
}

func TestApplication_MetricsHandler_ExposesCounters(t *testing.T) {
	pinEnv(t)
	a := newApp(t)

	err := a.NewScope().Run(context.Background(),
		func(context.Context, ...any) error { return nil })
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	a.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "goioc_scopes_run_total") {
		t.Error("metrics output should include the scope run counter")
	}
}

func TestApplication_EnvironmentHelpers(t *testing.T) {
	pinEnv(t)
	a := newApp(t)

	if !a.IsLocal() {
		t.Error("default environment should be local")
	}
	if a.IsProduction() || a.IsTesting() {
		t.Error("default environment must not be production or testing")
	}
	if !a.IsDebug() {
		t.Error("debug should default to true")
	}
	if a.Environment() != "local" {
		t.Errorf("Environment() = %q, want local", a.Environment())
	}
}
