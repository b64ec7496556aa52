package container

import (
	"errors"
	"maps"
	"sync/atomic"
)

// ── Checkpoints ───────────────────────────────────────────────────────────────

// checkpoint is a copy of the container's binding state at one instant.
// Callbacks and the build stack are observers / transients and stay live.
type checkpoint struct {
	bindings   map[string]*binding
	instances  map[string]any
	aliases    map[string]string
	extenders  map[string][]extender
	tags       map[string][]string
	contextual map[string]map[string]Factory
}

// ErrNoSnapshot is returned by Restore when no snapshot is pending.
var ErrNoSnapshot = errors.New("container: no snapshot to restore")

// ErrTxDone is returned when Commit or Rollback is called on a transaction
// that has already finished.
var ErrTxDone = errors.New("container: transaction already finished")

// Snapshot pushes a checkpoint of the current binding state (bindings,
// instances, aliases, extenders, tags, contextual bindings) onto an internal
// stack. Restore pops and reinstates the most recent checkpoint. Snapshots
// nest: sequential snapshot/restore pairs compose like a stack.
//
// Snapshot alone does not serialize concurrent mutators; use Begin when the
// checkpoint window must be exclusive.
func (c *Container) Snapshot() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshots = append(c.snapshots, &checkpoint{
		bindings:   maps.Clone(c.bindings),
		instances:  maps.Clone(c.instances),
		aliases:    maps.Clone(c.aliases),
		extenders:  maps.Clone(c.extenders),
		tags:       maps.Clone(c.tags),
		contextual: cloneContextual(c.contextual),
	})
	c.log.Debug().Int("depth", len(c.snapshots)).Msg("container: snapshot taken")
}

// Restore pops the most recent checkpoint and reinstates it, discarding every
// binding change made since the matching Snapshot.
func (c *Container) Restore() error {
	c.mu.Lock()
	n := len(c.snapshots)
	if n == 0 {
		c.mu.Unlock()
		return ErrNoSnapshot
	}
	cp := c.snapshots[n-1]
	c.snapshots = c.snapshots[:n-1]
	c.bindings = cp.bindings
	c.instances = cp.instances
	c.aliases = cp.aliases
	c.extenders = cp.extenders
	c.tags = cp.tags
	c.contextual = cp.contextual
	c.mu.Unlock()

	c.log.Debug().Int("depth", n-1).Msg("container: snapshot restored")
	return nil
}

// discardSnapshot pops the most recent checkpoint without applying it,
// keeping all changes made since the matching Snapshot.
func (c *Container) discardSnapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.snapshots)
	if n == 0 {
		return ErrNoSnapshot
	}
	c.snapshots = c.snapshots[:n-1]
	return nil
}

// cloneContextual deep-copies the two-level contextual map; the inner maps
// would otherwise be shared with the live container and mutate under the
// checkpoint.
func cloneContextual(src map[string]map[string]Factory) map[string]map[string]Factory {
	dst := make(map[string]map[string]Factory, len(src))
	for consumer, m := range src {
		dst[consumer] = maps.Clone(m)
	}
	return dst
}

// ── Transactions ──────────────────────────────────────────────────────────────

// Tx is an exclusive checkpoint window on a container. Between Begin and
// Commit/Rollback no other transaction can open, which is what lets a scope
// overlay temporary bindings on the shared container without another scope
// ever observing them.
type Tx struct {
	c    *Container
	done atomic.Bool
}

// Begin blocks until any other transaction has finished, takes a snapshot
// and returns the open transaction. Either Commit or Rollback must be called
// exactly once, or every later Begin blocks forever.
//
//	tx := c.Begin()
//	defer tx.Rollback()
//	c.Bind("scope.ctx", ...)  // visible only inside this window
//
// Do not call Begin from inside a factory resolved within an open window.
func (c *Container) Begin() *Tx {
	c.overlayMu.Lock()
	c.Snapshot()
	return &Tx{c: c}
}

// Rollback restores the container to its Begin-time snapshot and closes the
// window. Calling it after Commit or a prior Rollback returns ErrTxDone.
func (tx *Tx) Rollback() error {
	if !tx.done.CompareAndSwap(false, true) {
		return ErrTxDone
	}
	err := tx.c.Restore()
	tx.c.overlayMu.Unlock()
	return err
}

// Commit keeps all changes made during the window, drops the Begin-time
// snapshot and closes the window.
func (tx *Tx) Commit() error {
	if !tx.done.CompareAndSwap(false, true) {
		return ErrTxDone
	}
	err := tx.c.discardSnapshot()
	tx.c.overlayMu.Unlock()
	return err
}
