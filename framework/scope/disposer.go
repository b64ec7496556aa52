package scope

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ReleaseError aggregates the release failures of one scope. The task's own
// outcome is never folded into it; callers can pick release failures out of
// a combined error with errors.As.
type ReleaseError struct {
	Errs []error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("scope: %d release failure(s): %v", len(e.Errs), errors.Join(e.Errs...))
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *ReleaseError) Unwrap() []error { return e.Errs }

// disposerEntry pairs one acquired instance with its deferred release.
type disposerEntry struct {
	name     string
	instance any
	release  Releaser
}

// DisposerSet is the ordered collection of deferred releases accumulated
// during one scope's resolution phase. It doubles as the scope's
// first-acquisition cache: Instance returns the already-acquired value for a
// resource name, which is what makes resources per-scope singletons.
//
// At most one entry exists per resource name. Releases run in reverse
// acquisition order, like defer.
type DisposerSet struct {
	log zerolog.Logger

	mu       sync.Mutex
	entries  []disposerEntry
	byName   map[string]int
	released bool
}

// NewDisposerSet creates an empty set.
func NewDisposerSet(log zerolog.Logger) *DisposerSet {
	return &DisposerSet{log: log, byName: make(map[string]int)}
}

// Add records an acquired instance and its deferred release under name.
// A second Add for the same name is rejected, as is any Add after ReleaseAll.
func (d *DisposerSet) Add(name string, instance any, release Releaser) error {
	if release == nil {
		return fmt.Errorf("scope: nil release for %q", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return fmt.Errorf("scope: disposer set already released, cannot add %q", name)
	}
	if _, dup := d.byName[name]; dup {
		return fmt.Errorf("scope: duplicate disposer for %q", name)
	}
	d.byName[name] = len(d.entries)
	d.entries = append(d.entries, disposerEntry{name: name, instance: instance, release: release})
	return nil
}

// Instance returns the acquired instance recorded under name, if any.
func (d *DisposerSet) Instance(name string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.byName[name]
	if !ok {
		return nil, false
	}
	return d.entries[i].instance, true
}

// Names returns the recorded resource names in acquisition order.
func (d *DisposerSet) Names() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.name
	}
	return out
}

// Len returns the number of recorded disposers.
func (d *DisposerSet) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Released reports whether ReleaseAll has run.
func (d *DisposerSet) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// ReleaseAll runs every recorded release in reverse acquisition order. One
// failing (or panicking) release never prevents the others from running;
// failures are aggregated into a *ReleaseError. The first call wins: later
// calls are no-ops returning nil, so each release runs exactly once.
func (d *DisposerSet) ReleaseAll(ctx context.Context) error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	entries := d.entries
	d.mu.Unlock()

	var errs []error
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if err := runRelease(ctx, e.release); err != nil {
			errs = append(errs, fmt.Errorf("release %q: %w", e.name, err))
			d.log.Error().Err(err).Str("resource", e.name).Msg("scope: release failed")
			continue
		}
		d.log.Debug().Str("resource", e.name).Msg("scope: resource released")
	}
	if len(errs) > 0 {
		return &ReleaseError{Errs: errs}
	}
	return nil
}

// runRelease recovers a panicking release into an error so the remaining
// releases still run.
func runRelease(ctx context.Context, release Releaser) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return release(ctx)
}
