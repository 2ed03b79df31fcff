package tasks

import (
	"context"

	"github.com/desertthunder/docdash/internal/models"
)

// reporter implements [Reporter] for one task.
type reporter struct {
	m *Manager
	t *Task
}

func (r *reporter) TaskID() string           { return r.t.id }
func (r *reporter) Context() context.Context { return r.t.ctx }
func (r *reporter) Cancelled() bool          { return r.t.cancelled.Load() }

// Report applies a progress update. The cancel flag is checked first, on the first call and then every
// CancelCheckInterval calls, so a cancelled task never has a half-applied update.
func (r *reporter) Report(processed, total int64, stage, item string) error {
	t := r.t
	n := t.reports.Add(1)
	if t.cancelled.Load() && (n-1)%int64(r.m.opts.CancelCheckInterval) == 0 {
		return ErrCancelled
	}

	now := r.m.now()
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return ErrCancelled
	}

	// Progress is non-decreasing even when total grows after a rescan.
	t.progress = max(t.progress, models.Progress(processed, total))
	t.stats.Processed = processed
	t.stats.Total = total
	t.stats.Stage = stage
	t.stats.CurrentItem = item
	if stage != "" {
		t.message = stage
	}
	progress, message := t.progress, t.message
	snap := t.stats.Snapshot(now)
	r.m.cache.Set(t.entryLocked(now))
	t.mu.Unlock()

	boundary := processed <= 1 || (total > 0 && processed >= total)
	r.m.emitter.Progress(t.id, progress, message, &snap, boundary)
	return nil
}

// Note replaces the status message without changing progress. It is a no-op once the task is terminal.
func (r *reporter) Note(message string) {
	t := r.t
	now := r.m.now()
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return
	}
	t.message = message
	progress := t.progress
	snap := t.stats.Snapshot(now)
	r.m.cache.Set(t.entryLocked(now))
	t.mu.Unlock()

	r.m.emitter.Progress(t.id, progress, message, &snap, false)
}

func (r *reporter) AddBytes(n int64) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	r.t.stats.Bytes += n
}

func (r *reporter) AddErrors(n int64) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()
	r.t.stats.Errors += n
}
