package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/desertthunder/docdash/internal/models"
)

// ErrCancelled is returned by [Reporter.Report] once the task has been asked to stop. Work functions
// return it (or wrap it) to unwind.
var ErrCancelled = errors.New("task cancelled")

// WorkFunc is the contract every feature module implements. It returns the output location on success.
type WorkFunc func(ctx context.Context, input json.RawMessage, r Reporter) (string, error)

// Reporter is the progress-callback handed to a running [WorkFunc].
type Reporter interface {
	// Report records processed out of total units for stage, with the item being worked on.
	Report(processed, total int64, stage, item string) error
	// Note updates the task message without changing progress, e.g. while waiting to retry.
	Note(message string)
	// AddBytes adds n to the task's byte counter.
	AddBytes(n int64)
	// AddErrors adds n to the task's error counter for units that failed without failing the task.
	AddErrors(n int64)
	// Cancelled reports whether cancellation was requested.
	Cancelled() bool
	// Context is cancelled when the task is.
	Context() context.Context
	TaskID() string
}

// Task is one unit of background work. Its state is written by its own worker; other goroutines only
// read it or set the cancel flag.
type Task struct {
	id        string
	kind      models.Kind
	input     json.RawMessage
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	cancelled atomic.Bool
	reports   atomic.Int64

	mu           sync.Mutex
	status       models.Status
	progress     int
	message      string
	output       string
	errMsg       string
	category     string
	cancelReason string
	stats        models.Stats
	endedAt      time.Time
}

func newTask(ctx context.Context, id string, kind models.Kind, input json.RawMessage, now time.Time) *Task {
	tctx, cancel := context.WithCancel(ctx)
	return &Task{
		id:        id,
		kind:      kind,
		input:     input,
		createdAt: now,
		ctx:       tctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		status:    models.StatusQueued,
		message:   "Queued",
		stats:     models.Stats{Unit: kind.Unit()},
	}
}

func (t *Task) ID() string           { return t.id }
func (t *Task) Kind() models.Kind    { return t.kind }
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// Done is closed once the worker goroutine has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Status returns the current status.
func (t *Task) Status() models.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// CancelRequested reports whether the cancel flag is set.
func (t *Task) CancelRequested() bool { return t.cancelled.Load() }

// EndedAt returns when the task reached a terminal status, or the zero time.
func (t *Task) EndedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endedAt
}

// requestCancel sets the cancel flag and cancels the task context. It reports false for terminal tasks.
func (t *Task) requestCancel(reason string) bool {
	t.mu.Lock()
	if t.status.Terminal() {
		t.mu.Unlock()
		return false
	}
	if !t.cancelled.Load() {
		t.cancelReason = reason
	}
	t.cancelled.Store(true)
	t.mu.Unlock()

	t.cancel()
	return true
}

// entryLocked copies the task state into a cache entry. Callers hold t.mu.
func (t *Task) entryLocked(now time.Time) Entry {
	return Entry{
		ID:        t.id,
		Kind:      t.kind,
		Status:    t.status,
		Progress:  t.progress,
		Message:   t.message,
		Output:    t.output,
		Error:     t.errMsg,
		Category:  t.category,
		Stats:     t.stats,
		CreatedAt: t.createdAt,
		UpdatedAt: now,
	}
}
