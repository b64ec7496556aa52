// Package scope implements bounded units of dependency resolution with
// guaranteed resource cleanup on top of the container package.
//
// # Overview
//
// A Scope answers one question: how do you hand a unit of work a set of
// dependencies — some of which are resources that must be acquired and later
// released — without leaking either the resources or the scope-local
// bindings used to resolve them?
//
// The protocol, in order:
//
//  1. Checkpoint the shared registry (an exclusive transaction window).
//  2. Bind a fresh write-once Context and populate it with ambient data.
//  3. Bind one lazy producer per catalogued Resource; the first resolution
//     within the scope constructs the instance, runs its Acquire step if it
//     has one, and records a deferred release in the Disposer Set. Later
//     resolutions return the same instance.
//  4. Resolve the declared identifiers in declaration order.
//  5. Roll the registry back — the overlay is gone before the task starts,
//     so no other scope ever observes it.
//  6. Run the task with the resolved values, then release every acquired
//     resource, whether the task returned nil, returned an error or
//     panicked.
//
// # Resources
//
// A Resource pairs a constructor with a disposer factory:
//
//	resources := scope.NewResourceSet(log)
//	resources.Register(scope.Resource{
//	    Name: "lease",
//	    New: func(c *container.Container) (any, error) {
//	        return store.NewLease(), nil
//	    },
//	    DisposeWith: func(instance any) scope.Releaser {
//	        lease := instance.(*store.Lease)
//	        return func(ctx context.Context) error { return lease.Release(ctx) }
//	    },
//	})
//
// If the constructed instance implements Acquirer, its Acquire step runs
// before any consumer sees the instance; an acquire failure aborts the scope
// before the task, and resources acquired earlier in the same scope are
// still released.
//
// # Sharing and isolation
//
// Within one scope a resource is a singleton: every consumer, whether it
// resolves the resource directly or through another binding's factory,
// receives the identical instance, and its release runs exactly once.
// Across scopes nothing is shared: two scopes acquiring the same resource
// get distinct instances, and a later scope starts from a clean registry.
//
// # Releases
//
// Releases run in reverse acquisition order, like defer. A failing or
// panicking release never blocks the others; failures aggregate into a
// *ReleaseError. When the task also failed, both errors surface through
// errors.Join — neither hides the other.
//
// # Running a scope
//
//	s := scope.New(app, resources, scope.WithLogger(log), scope.WithMetrics(m))
//	err := s.
//	    Context(map[string]any{"request_id": reqID}).
//	    Inject("report", "lease", scope.ContextKey).
//	    Run(ctx, func(ctx context.Context, deps ...any) error {
//	        report := deps[0].(*Report)
//	        lease := deps[1].(*store.Lease)
//	        sc := deps[2].(*scope.Context)
//	        return report.Write(ctx, lease, sc.MustGet("request_id"))
//	    })
//
// A Scope is single-use; build a new one per unit of work.
package scope
