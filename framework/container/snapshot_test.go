package container_test

import (
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/km-arc/go-ioc/framework/container"
)

// ── Snapshot / Restore ────────────────────────────────────────────────────────

func TestContainer_Snapshot_RestoreDropsLaterBindings(t *testing.T) {
	c := container.New()
	c.Instance("keep", "original")

	c.Snapshot()
	c.Instance("keep", "overlaid")
	c.Instance("temp", "scope-local")

	if err := c.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := c.Make("keep").(string); got != "original" {
		t.Errorf("keep after restore: got %q, want original value", got)
	}
	if c.Bound("temp") {
		t.Error("temp binding should be gone after restore")
	}
}

func TestContainer_Snapshot_NestedPairsCompose(t *testing.T) {
	c := container.New()
	c.Instance("level", 0)

	c.Snapshot()
	c.Instance("level", 1)
	c.Snapshot()
	c.Instance("level", 2)

	if err := c.Restore(); err != nil {
		t.Fatalf("inner Restore: %v", err)
	}
	if got := c.Make("level").(int); got != 1 {
		t.Errorf("after inner restore: got %d, want 1", got)
	}

	if err := c.Restore(); err != nil {
		t.Fatalf("outer Restore: %v", err)
	}
	if got := c.Make("level").(int); got != 0 {
		t.Errorf("after outer restore: got %d, want 0", got)
	}
}

func TestContainer_Restore_WithoutSnapshotFails(t *testing.T) {
	c := container.New()
	if err := c.Restore(); !errors.Is(err, container.ErrNoSnapshot) {
		t.Errorf("got %v, want ErrNoSnapshot", err)
	}
}

func TestContainer_Restore_DropsPostSnapshotSingletonCache(t *testing.T) {
	c := container.New()
	c.Singleton("widget", func(c *container.Container) (any, error) {
		return &widget{}, nil
	})

	c.Snapshot()
	first := c.Make("widget").(*widget)
	if err := c.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if c.Resolved("widget") {
		t.Error("instance cached after the snapshot should be dropped by restore")
	}
	second := c.Make("widget").(*widget)
	if first == second {
		t.Error("re-resolution after restore should build a fresh instance")
	}
}

func TestContainer_Restore_KeepsPreSnapshotSingletonCache(t *testing.T) {
	c := container.New()
	c.Singleton("widget", func(c *container.Container) (any, error) {
		return &widget{}, nil
	})
	first := c.Make("widget").(*widget)

	c.Snapshot()
	if err := c.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if c.Make("widget").(*widget) != first {
		t.Error("instance cached before the snapshot should survive restore")
	}
}

func TestContainer_Restore_RevertsAliasesTagsContextual(t *testing.T) {
	c := container.New()
	c.Instance("clock", "wall")
	c.Bind("report", func(c *container.Container) (any, error) {
		return "report@" + c.Make("clock").(string), nil
	})

	c.Snapshot()
	c.Alias("clock", "time")
	c.Tag([]string{"clock"}, "ambient")
	c.When("report").Needs("clock").GiveValue("frozen")

	if got := c.Make("report").(string); got != "report@frozen" {
		t.Fatalf("inside window: got %q, want contextual clock", got)
	}

	if err := c.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if c.Bound("time") {
		t.Error("alias added after snapshot should be gone")
	}
	if got, _ := c.Tagged("ambient"); len(got) != 0 {
		t.Error("tag added after snapshot should be gone")
	}
	if got := c.Make("report").(string); got != "report@wall" {
		t.Errorf("after restore: got %q, want global clock", got)
	}
}

func TestContainer_Bindings_IdenticalAfterSnapshotMutateRestore(t *testing.T) {
	c := container.New()
	c.Instance("a", 1)
	c.Instance("b", 2)
	before := c.Bindings()
	slices.Sort(before)

	c.Snapshot()
	c.Instance("scope.ctx", "overlay")
	c.Forget("a")
	if err := c.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	after := c.Bindings()
	slices.Sort(after)
	if !slices.Equal(before, after) {
		t.Errorf("bound identifiers changed across snapshot/restore:\n before %v\n after  %v", before, after)
	}
}

// ── Transactions ──────────────────────────────────────────────────────────────

func TestContainer_Tx_RollbackRemovesOverlay(t *testing.T) {
	c := container.New()
	c.Instance("keep", "v1")

	tx := c.Begin()
	c.Instance("temp", "scope-local")
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if c.Bound("temp") {
		t.Error("overlay binding should be gone after rollback")
	}
	if got := c.Make("keep").(string); got != "v1" {
		t.Errorf("keep: got %q, want v1", got)
	}
}

func TestContainer_Tx_CommitKeepsChanges(t *testing.T) {
	c := container.New()

	tx := c.Begin()
	c.Instance("adopted", "v1")
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if got := c.Make("adopted").(string); got != "v1" {
		t.Errorf("adopted: got %q, want v1", got)
	}
}

func TestContainer_Tx_FinishTwiceFails(t *testing.T) {
	c := container.New()

	tx := c.Begin()
	if err := tx.Rollback(); err != nil {
		t.Fatalf("first Rollback: %v", err)
	}
	if err := tx.Rollback(); !errors.Is(err, container.ErrTxDone) {
		t.Errorf("second Rollback: got %v, want ErrTxDone", err)
	}

	tx = c.Begin()
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Rollback(); !errors.Is(err, container.ErrTxDone) {
		t.Errorf("Rollback after Commit: got %v, want ErrTxDone", err)
	}
}

func TestContainer_Tx_WindowsAreExclusive(t *testing.T) {
	c := container.New()
	c.Instance("shared", "base")
	before := c.Bindings()
	slices.Sort(before)

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	keys := []string{"tmp.a", "tmp.b", "tmp.c", "tmp.d"}
	for _, key := range keys {
		wg.Add(1)
		go func(mine string) {
			defer wg.Done()
			tx := c.Begin()
			defer tx.Rollback()

			c.Instance(mine, "overlay")
			for _, other := range keys {
				if other != mine && c.Bound(other) {
					errs <- "saw " + other + " inside window for " + mine
				}
			}
			if !c.Bound(mine) {
				errs <- "own overlay missing for " + mine
			}
		}(key)
	}
	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}

	after := c.Bindings()
	slices.Sort(after)
	if !slices.Equal(before, after) {
		t.Errorf("bindings leaked across windows:\n before %v\n after  %v", before, after)
	}
}
