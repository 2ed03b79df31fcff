package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/desertthunder/docdash/internal/models"
)

func TestProgressCache(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base

	c := NewProgressCache()
	c.now = func() time.Time { return clock }

	c.Set(Entry{ID: "live", Status: models.StatusProcessing, UpdatedAt: base, CreatedAt: base,
		Stats: models.Stats{Total: 10, Processed: 4, StartedAt: base}})
	c.Set(Entry{ID: "done", Status: models.StatusCompleted, UpdatedAt: base, CreatedAt: base.Add(time.Second)})

	t.Run("Get recomputes derived fields", func(t *testing.T) {
		clock = base.Add(10 * time.Second)
		v, ok := c.Get("live")
		if !ok {
			t.Fatal("expected entry")
		}
		if v.Stats.ElapsedSeconds != 10 {
			t.Errorf("expected 10s elapsed, got %v", v.Stats.ElapsedSeconds)
		}
		if v.Stats.CompletionPercentage != 40 {
			t.Errorf("expected 40%%, got %v", v.Stats.CompletionPercentage)
		}
	})

	t.Run("All newest first", func(t *testing.T) {
		all := c.All()
		if len(all) != 2 || all[0].ID != "done" {
			t.Errorf("unexpected order %v", all)
		}
	})

	t.Run("Sweep drops only old terminal entries", func(t *testing.T) {
		clock = base.Add(2 * time.Hour)
		removed := c.Sweep(time.Hour)
		if len(removed) != 1 || removed[0] != "done" {
			t.Errorf("expected done removed, got %v", removed)
		}
		if _, ok := c.Get("live"); !ok {
			t.Error("live entries are never swept")
		}
	})

	t.Run("Terminal entries are not replaced by live ones", func(t *testing.T) {
		c.Set(Entry{ID: "stopped", Status: models.StatusCancelled, UpdatedAt: clock, CreatedAt: base})
		c.Set(Entry{ID: "stopped", Status: models.StatusProcessing, Message: "busy", UpdatedAt: clock, CreatedAt: base})
		v, _ := c.Get("stopped")
		if v.Status != models.StatusCancelled || v.Message == "busy" {
			t.Errorf("expected the cancelled entry to stick, got %+v", v)
		}
		c.Delete("stopped")
	})

	t.Run("Delete", func(t *testing.T) {
		c.Delete("live")
		if c.Len() != 0 {
			t.Errorf("expected empty cache, got %d", c.Len())
		}
	})
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	a := newTask(context.Background(), "a", models.KindPDFDownload, nil, now)
	b := newTask(context.Background(), "b", models.KindPDFDownload, nil, now.Add(time.Second))

	if err := r.Add(a); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := r.Add(b); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := r.Add(a); err == nil {
		t.Error("duplicate id should be rejected")
	}

	b.mu.Lock()
	b.status = models.StatusCompleted
	b.mu.Unlock()

	active := r.Active()
	if len(active) != 1 || active[0].ID() != "a" {
		t.Errorf("expected only a active, got %d", len(active))
	}
	if all := r.All(); len(all) != 2 || all[0].ID() != "a" {
		t.Error("All should be oldest first")
	}

	if !r.Remove("a") || r.Remove("a") {
		t.Error("remove should report presence once")
	}
	if _, ok := r.Get("a"); ok {
		t.Error("removed task still present")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 task, got %d", r.Len())
	}
}

func TestTaskRequestCancel(t *testing.T) {
	task := newTask(context.Background(), "t", models.KindWebScraping, nil, time.Now())

	if !task.requestCancel("first") {
		t.Fatal("cancel of queued task should succeed")
	}
	if !task.requestCancel("second") {
		t.Error("repeat cancel of a live task still reports true")
	}
	if task.cancelReason != "first" {
		t.Errorf("first reason wins, got %q", task.cancelReason)
	}
	select {
	case <-task.ctx.Done():
	default:
		t.Error("task context should be cancelled")
	}

	task.mu.Lock()
	task.status = models.StatusCancelled
	task.mu.Unlock()
	if task.requestCancel("late") {
		t.Error("terminal task cannot be cancelled")
	}
}

func TestCatalog(t *testing.T) {
	c := NewCatalog()
	c.Register(models.KindWebScraping, func(context.Context, json.RawMessage, Reporter) (string, error) { return "", nil })
	c.Register(models.KindFileProcessing, func(context.Context, json.RawMessage, Reporter) (string, error) { return "", nil })

	if _, ok := c.Lookup(models.KindWebScraping); !ok {
		t.Error("expected registered kind")
	}
	if _, ok := c.Lookup(models.KindPDFDownload); ok {
		t.Error("unexpected kind")
	}
	kinds := c.Kinds()
	if len(kinds) != 2 || kinds[0] != models.KindFileProcessing {
		t.Errorf("expected sorted kinds, got %v", kinds)
	}
}
