package main

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/km-arc/go-ioc/framework/app"
	"github.com/km-arc/go-ioc/framework/container"
	gohttp "github.com/km-arc/go-ioc/framework/http"
	"github.com/km-arc/go-ioc/framework/routing"
	"github.com/km-arc/go-ioc/framework/scope"
)

func main() {
	application := app.New() // loads .env automatically
	application.Register(&ReportServiceProvider{})
	application.Boot()

	registerResources(application)

	store := container.Resolve[*ReportStore](application.Container, "reports")
	rc := &ReportController{store: store}

	// One-shot unit of work: seed demo data inside its own scope.
	err := application.NewScope().
		Context(map[string]any{"job": "seed"}).
		Inject("audit").
		Run(context.Background(), func(ctx context.Context, deps ...any) error {
			audit := deps[0].(*AuditTrail)
			store.Add("Quarterly revenue")
			store.Add("Weekly active users")
			audit.Record("seeded demo reports")
			return nil
		})
	if err != nil {
		logger := application.Log()
		logger.Fatal().Err(err).Msg("seed scope failed")
	}

	r := application.Router()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		gohttp.NewResponse(w).Success(map[string]any{"message": "Welcome to go-ioc!"})
	})
	r.Get("/metrics", application.MetricsHandler().ServeHTTP)

	// ── API routes: every request runs in its own scope ──────────────────────

	mw := application.ScopeMiddleware("audit")
	r.Prefix("/api/v1", func(api *routing.Router) {
		api.Middleware(mw.Handler)
		api.Get("/reports", rc.Index)
		api.Post("/reports", rc.Store)
		api.Get("/reports/{id}", rc.Show)
	})

	// The counter additionally checks out a dedicated redis connection
	// per request, returned to the pool when the scope releases.
	counterMW := application.ScopeMiddleware("audit", "redis.conn")
	r.Group(func(g *routing.Router) {
		g.Middleware(counterMW.Handler)
		g.Get("/counter", counterHandler)
	})

	if err := application.Run(); err != nil {
		logger := application.Log()
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// registerResources declares what request scopes may acquire.
func registerResources(application *app.Application) {
	application.Resources().Register(scope.Resource{
		Name: "audit",
		New: func(c *container.Container) (any, error) {
			log, err := container.TryResolve[zerolog.Logger](c, "log")
			if err != nil {
				return nil, err
			}
			trail := &AuditTrail{log: log}
			if sctx, err := container.TryResolve[*scope.Context](c, scope.ContextKey); err == nil {
				trail.request, _ = scope.Value[string](sctx, "http.request_id")
			}
			return trail, nil
		},
		DisposeWith: func(v any) scope.Releaser {
			return v.(*AuditTrail).flush
		},
	})

	application.Resources().Register(scope.Resource{
		Name: "redis.conn",
		New: func(c *container.Container) (any, error) {
			client, err := container.TryResolve[*redis.Client](c, "redis")
			if err != nil {
				return nil, err
			}
			return client.Conn(), nil
		},
		DisposeWith: func(v any) scope.Releaser {
			conn := v.(*redis.Conn)
			return func(context.Context) error { return conn.Close() }
		},
	})
}

func counterHandler(w http.ResponseWriter, req *http.Request) {
	res := gohttp.NewResponse(w)
	conn, err := gohttp.DepAs[*redis.Conn](req, "redis.conn")
	if err != nil {
		res.ServerError(err.Error())
		return
	}
	hits, err := conn.Incr(req.Context(), "go-ioc:hits").Result()
	if err != nil {
		res.Error(http.StatusBadGateway, err.Error())
		return
	}
	res.Success(map[string]any{"hits": hits})
}

// ── Report API ───────────────────────────────────────────────────────────────

type ReportController struct {
	app.Controller
	store *ReportStore
}

func (rc *ReportController) Index(w http.ResponseWriter, r *http.Request) {
	if audit, err := gohttp.DepAs[*AuditTrail](r, "audit"); err == nil {
		audit.Record("reports.index")
	}
	rc.Response(w).Success(rc.store.All())
}

func (rc *ReportController) Store(w http.ResponseWriter, r *http.Request) {
	req := rc.Request(r)
	res := rc.Response(w)

	var body struct {
		Title string `json:"title"`
	}
	if err := req.Bind(&body); err != nil {
		res.Error(http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(body.Title) == "" {
		res.Error(http.StatusUnprocessableEntity, "title is required")
		return
	}

	report := rc.store.Add(body.Title)
	if audit, err := gohttp.DepAs[*AuditTrail](r, "audit"); err == nil {
		audit.Record("reports.store " + strconv.Itoa(report.ID))
	}
	res.Created(report)
}

func (rc *ReportController) Show(w http.ResponseWriter, r *http.Request) {
	res := rc.Response(w)
	id, err := strconv.Atoi(rc.Request(r).RouteParam("id"))
	if err != nil {
		res.Error(http.StatusBadRequest, "id must be numeric")
		return
	}
	report, ok := rc.store.Get(id)
	if !ok {
		res.NotFound()
		return
	}
	res.Success(report)
}

// ── Report store ─────────────────────────────────────────────────────────────

type Report struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// ReportStore is a process-wide in-memory store, shared across scopes.
type ReportStore struct {
	mu      sync.Mutex
	nextID  int
	reports map[int]Report
}

func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[int]Report)}
}

func (s *ReportStore) Add(title string) Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r := Report{ID: s.nextID, Title: title}
	s.reports[r.ID] = r
	return r
}

func (s *ReportStore) Get(id int) (Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	return r, ok
}

func (s *ReportStore) All() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReportServiceProvider binds the report store as "reports".
type ReportServiceProvider struct {
	container.BaseProvider
}

func (p *ReportServiceProvider) Register(app *container.Container) {
	app.Singleton("reports", func(*container.Container) (any, error) {
		return NewReportStore(), nil
	})
}

// ── Audit trail ──────────────────────────────────────────────────────────────

// AuditTrail batches what happened during one scope and flushes it to the
// log when the scope releases.
type AuditTrail struct {
	log     zerolog.Logger
	request string
	started time.Time
	entries []string
}

// Acquire stamps the start time when the scope first touches the trail.
func (a *AuditTrail) Acquire(ctx context.Context) error {
	a.started = time.Now()
	return nil
}

func (a *AuditTrail) Record(action string) {
	a.entries = append(a.entries, action)
}

func (a *AuditTrail) flush(ctx context.Context) error {
	a.log.Info().
		Str("request_id", a.request).
		Strs("actions", a.entries).
		Dur("held", time.Since(a.started)).
		Msg("audit flushed")
	return nil
}
