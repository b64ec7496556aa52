package scope

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/km-arc/go-ioc/framework/container"
)

// Registry is the container contract the scope protocol consumes: bind
// overlay entries, resolve identifiers, and bracket the whole window in an
// exclusive transaction.
type Registry interface {
	Bind(abstract string, factory container.Factory)
	Bound(abstract string) bool
	TryMake(abstract string) (any, error)
	Begin() *container.Tx
}

var _ Registry = (*container.Container)(nil)

// Task is the unit of work a scope runs. It receives the declared
// dependencies in declaration order.
type Task func(ctx context.Context, deps ...any) error

var (
	// ErrScopeReused is returned when Run is called twice on one Scope.
	ErrScopeReused = errors.New("scope: Run already called on this scope")

	// ErrNilTask is returned when Run is given no task.
	ErrNilTask = errors.New("scope: nil task")
)

// Scope is one bounded unit of dependency resolution with guaranteed
// resource cleanup. A scope overlays its context and one lazy producer per
// catalogued resource onto the shared registry, resolves the declared
// identifiers, rolls the registry back, runs the task, and finally releases
// every resource that was actually acquired — on success, error or panic.
//
//	s := scope.New(app, resources, scope.WithLogger(log))
//	err := s.Context(map[string]any{"request_id": id}).
//	    Inject("report", "lease").
//	    Run(ctx, func(ctx context.Context, deps ...any) error {
//	        report := deps[0].(*Report)
//	        lease := deps[1].(*Lease)
//	        return report.Write(ctx, lease)
//	    })
//
// A Scope is single-use: the second Run returns ErrScopeReused.
type Scope struct {
	id        string
	reg       Registry
	resources *ResourceSet
	ctx       *Context
	disposers *DisposerSet
	declared  []string
	data      []map[string]any
	used      atomic.Bool
	log       zerolog.Logger
	metrics   *Metrics
}

// Option configures a Scope at construction time.
type Option func(*Scope)

// WithLogger attaches a structured logger; the scope id is added as a field.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scope) { s.log = log }
}

// WithMetrics attaches scope counters.
func WithMetrics(m *Metrics) Option {
	return func(s *Scope) { s.metrics = m }
}

// New creates a scope over the shared registry and the resource catalog.
// A nil catalog is treated as empty.
func New(reg Registry, resources *ResourceSet, opts ...Option) *Scope {
	s := &Scope{
		id:        uuid.NewString(),
		reg:       reg,
		resources: resources,
		ctx:       NewContext(),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("scope_id", s.id).Logger()
	s.disposers = NewDisposerSet(s.log)
	return s
}

// ID returns the scope's unique identifier.
func (s *Scope) ID() string { return s.id }

// Context records ambient values to install into the scope's write-once
// context before resolution. May be called repeatedly; a duplicate key
// across all calls fails Run before any resource is acquired.
func (s *Scope) Context(data map[string]any) *Scope {
	s.data = append(s.data, data)
	return s
}

// Inject declares which identifiers the scope resolves and hands to the
// task, in the given order. Declarative only; nothing resolves until Run.
func (s *Scope) Inject(identifiers ...string) *Scope {
	s.declared = append(s.declared, identifiers...)
	return s
}

// Run executes the scope protocol: checkpoint the registry, install the
// overlay (context binding plus lazy resource producers), resolve the
// declared identifiers, roll the registry back, then run task with the
// resolved values. Every resource acquired during resolution is released
// after the task finishes, whether it returns nil, returns an error or
// panics. The task's outcome is the scope's outcome; release failures are
// joined to it, never silently dropped.
func (s *Scope) Run(ctx context.Context, task Task) error {
	if !s.used.CompareAndSwap(false, true) {
		return ErrScopeReused
	}
	if task == nil {
		return ErrNilTask
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.metrics.incRun()
	s.log.Debug().Strs("inject", s.declared).Msg("scope: run starting")

	released := false
	defer func() {
		if released {
			return
		}
		// Unwinding from a panic: release what was acquired, let the
		// panic continue.
		if relErr := s.releaseAll(ctx); relErr != nil {
			s.log.Error().Err(relErr).Msg("scope: release failed during unwind")
		}
	}()

	deps, err := s.resolveWindow(ctx)
	if err != nil {
		// Resources acquired before the failure still get released.
		relErr := s.releaseAll(ctx)
		released = true
		s.metrics.incFailure()
		if relErr != nil {
			return errors.Join(err, relErr)
		}
		return err
	}

	taskErr := task(ctx, deps...)
	relErr := s.releaseAll(ctx)
	released = true

	switch {
	case taskErr != nil && relErr != nil:
		s.metrics.incFailure()
		return errors.Join(taskErr, relErr)
	case taskErr != nil:
		s.metrics.incFailure()
		return taskErr
	case relErr != nil:
		s.metrics.incFailure()
		return relErr
	}
	s.log.Debug().Msg("scope: run complete")
	return nil
}

// resolveWindow executes checkpoint → overlay → resolve → rollback and
// returns the resolved dependencies in declaration order. The registry is
// back to its pre-window state on every return path, panic included.
func (s *Scope) resolveWindow(runCtx context.Context) (deps []any, err error) {
	// Populate the write-once context first; a duplicate key fails the
	// scope before the registry or any resource is touched.
	for _, m := range s.data {
		for k, v := range m {
			if serr := s.ctx.SetOnce(k, v); serr != nil {
				return nil, serr
			}
		}
	}

	tx := s.reg.Begin()
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
	}()

	if oerr := s.installOverlay(runCtx); oerr != nil {
		return nil, oerr
	}

	deps = make([]any, len(s.declared))
	for i, id := range s.declared {
		v, rerr := s.reg.TryMake(id)
		if rerr != nil {
			return nil, fmt.Errorf("scope: resolving [%s]: %w", id, rerr)
		}
		deps[i] = v
	}
	return deps, nil
}

// installOverlay binds the scope context and one lazy producer per
// catalogued resource. Collisions with pre-existing registry bindings are
// configuration errors, not silent shadowing.
func (s *Scope) installOverlay(runCtx context.Context) error {
	if s.reg.Bound(ContextKey) {
		return fmt.Errorf("scope: [%s] is already bound in the shared registry", ContextKey)
	}
	sc := s.ctx
	s.reg.Bind(ContextKey, func(_ *container.Container) (any, error) {
		return sc, nil
	})

	for _, name := range s.resources.Names() {
		res, ok := s.resources.Get(name)
		if !ok {
			continue
		}
		if s.reg.Bound(res.Name) {
			return fmt.Errorf("scope: resource [%s] collides with an existing binding", res.Name)
		}
		r := res
		s.reg.Bind(r.Name, func(c *container.Container) (any, error) {
			return s.touch(runCtx, c, r)
		})
	}
	return nil
}

// touch returns the scope's singleton instance for a resource, acquiring it
// and recording its disposer on first use within the scope.
func (s *Scope) touch(runCtx context.Context, c *container.Container, r Resource) (any, error) {
	if inst, ok := s.disposers.Instance(r.Name); ok {
		return inst, nil
	}

	inst, err := r.New(c)
	if err != nil {
		return nil, fmt.Errorf("acquiring [%s]: %w", r.Name, err)
	}
	if acq, ok := inst.(Acquirer); ok {
		if err := acq.Acquire(runCtx); err != nil {
			return nil, fmt.Errorf("acquiring [%s]: %w", r.Name, err)
		}
	}
	if err := s.disposers.Add(r.Name, inst, r.DisposeWith(inst)); err != nil {
		return nil, err
	}
	s.metrics.incAcquired()
	s.log.Debug().Str("resource", r.Name).Msg("scope: resource acquired")
	return inst, nil
}

// releaseAll drains the disposer set and counts failures.
func (s *Scope) releaseAll(ctx context.Context) error {
	err := s.disposers.ReleaseAll(ctx)
	if err != nil {
		s.metrics.incReleaseFailure()
	}
	return err
}
