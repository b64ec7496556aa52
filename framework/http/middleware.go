package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/km-arc/go-ioc/framework/scope"
)

// ── Scope middleware ─────────────────────────────────────────────────────────

// ScopeMiddleware runs every request inside its own resource scope. Resources
// declared with Inject are acquired before the handler runs and released
// after it returns, whether it succeeds, fails or panics.
//
//	mw := gohttp.NewScopeMiddleware(c, catalog,
//	    gohttp.WithInject("db.tx", "redis.conn"),
//	    gohttp.WithLogger(logger),
//	)
//	r.Use(mw.Handler)
//
// Handlers reach their per-request instances through Dep or DepAs:
//
//	tx, err := gohttp.DepAs[*Tx](r, "db.tx")
type ScopeMiddleware struct {
	reg       scope.Registry
	resources *scope.ResourceSet
	inject    []string
	data      map[string]any
	log       zerolog.Logger
	metrics   *scope.Metrics
}

// MiddlewareOption configures a ScopeMiddleware.
type MiddlewareOption func(*ScopeMiddleware)

// WithInject declares the resource identifiers every request acquires.
func WithInject(ids ...string) MiddlewareOption {
	return func(m *ScopeMiddleware) { m.inject = append(m.inject, ids...) }
}

// WithContextData seeds extra read-only values into each request's scope
// context, alongside the http.* keys the middleware sets itself.
func WithContextData(data map[string]any) MiddlewareOption {
	return func(m *ScopeMiddleware) {
		for k, v := range data {
			m.data[k] = v
		}
	}
}

// WithLogger sets the logger passed to each request scope.
func WithLogger(log zerolog.Logger) MiddlewareOption {
	return func(m *ScopeMiddleware) { m.log = log }
}

// WithMetrics sets the metrics sink passed to each request scope.
func WithMetrics(mx *scope.Metrics) MiddlewareOption {
	return func(m *ScopeMiddleware) { m.metrics = mx }
}

// NewScopeMiddleware builds a ScopeMiddleware over a registry and a resource
// catalog. The catalog may be nil when only context data is needed.
func NewScopeMiddleware(reg scope.Registry, resources *scope.ResourceSet, opts ...MiddlewareOption) *ScopeMiddleware {
	m := &ScopeMiddleware{
		reg:       reg,
		resources: resources,
		data:      make(map[string]any),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// scopePayload carries the resolved scope state through the request context.
type scopePayload struct {
	id   string
	sctx *scope.Context
	deps map[string]any
}

type payloadKey struct{}

// Handler wraps next so that it runs inside a fresh scope per request.
//
// The middleware seeds three context keys before resolution:
//
//	http.request_id  — a new UUID per request
//	http.method      — the HTTP method
//	http.path        — the URL path
//
// and echoes the scope id back in the X-Scope-ID response header. A failure
// before the handler runs (unknown identifier, acquisition error) produces a
// 500; a release failure after the handler has written its response is
// logged and the response left untouched.
func (m *ScopeMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc := scope.New(m.reg, m.resources,
			scope.WithLogger(m.log),
			scope.WithMetrics(m.metrics),
		)
		w.Header().Set("X-Scope-ID", sc.ID())

		data := map[string]any{
			"http.request_id": uuid.NewString(),
			"http.method":     r.Method,
			"http.path":       r.URL.Path,
		}
		for k, v := range m.data {
			data[k] = v
		}

		// The scope context itself is injected alongside the declared
		// resources so handlers can read it through ScopeCtx.
		ids := append([]string{scope.ContextKey}, m.inject...)

		var ran bool
		err := sc.Context(data).Inject(ids...).Run(r.Context(), func(ctx context.Context, deps ...any) error {
			ran = true
			payload := &scopePayload{
				id:   sc.ID(),
				sctx: deps[0].(*scope.Context),
				deps: make(map[string]any, len(m.inject)),
			}
			for i, id := range m.inject {
				payload.deps[id] = deps[i+1]
			}
			rr := r.WithContext(context.WithValue(ctx, payloadKey{}, payload))
			next.ServeHTTP(w, rr)
			return nil
		})
		if err == nil {
			return
		}
		if !ran {
			m.log.Error().Err(err).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("http: scope failed before handler")
			NewResponse(w).ServerError()
			return
		}
		// The handler already wrote its response; only cleanup failed.
		m.log.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("http: scope release failed after handler")
	})
}

// ── Handler accessors ────────────────────────────────────────────────────────

// Dep returns the per-request instance acquired for id, if the request ran
// through a ScopeMiddleware that injected it.
func Dep(r *http.Request, id string) (any, bool) {
	p, ok := r.Context().Value(payloadKey{}).(*scopePayload)
	if !ok {
		return nil, false
	}
	v, ok := p.deps[id]
	return v, ok
}

// DepAs returns the per-request instance for id asserted to T.
func DepAs[T any](r *http.Request, id string) (T, error) {
	var zero T
	v, ok := Dep(r, id)
	if !ok {
		return zero, fmt.Errorf("http: no scope dependency [%s] on request", id)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("http: dependency [%s] is %T, not %T", id, v, zero)
	}
	return t, nil
}

// ScopeCtx returns the request's scope context, or nil outside the middleware.
func ScopeCtx(r *http.Request) *scope.Context {
	p, ok := r.Context().Value(payloadKey{}).(*scopePayload)
	if !ok {
		return nil
	}
	return p.sctx
}

// ScopeID returns the id of the scope the request runs in, or "".
func ScopeID(r *http.Request) string {
	p, ok := r.Context().Value(payloadKey{}).(*scopePayload)
	if !ok {
		return ""
	}
	return p.id
}
