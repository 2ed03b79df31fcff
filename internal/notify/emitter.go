package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/shared"
)

// Options tunes the progress throttle and the publish timeout.
type Options struct {
	Interval time.Duration // minimum time between progress events
	Delta    int           // progress change that forces an event
	Timeout  time.Duration // bound on a single Publish call
}

// DefaultOptions returns 500ms, 5 points and a 2s publish timeout.
func DefaultOptions() Options {
	return Options{Interval: 500 * time.Millisecond, Delta: 5, Timeout: 2 * time.Second}
}

// OptionsFromConfig reads the throttle settings from the [engine] config section.
func OptionsFromConfig(c shared.EngineConfig) Options {
	opts := DefaultOptions()
	if c.ThrottleInterval.Duration > 0 {
		opts.Interval = c.ThrottleInterval.Duration
	}
	if c.ThrottleDelta > 0 {
		opts.Delta = c.ThrottleDelta
	}
	if c.PublishTimeout.Duration > 0 {
		opts.Timeout = c.PublishTimeout.Duration
	}
	return opts
}

type throttleState struct {
	at       time.Time
	progress int
}

// Emitter decides whether to publish and guarantees at most one terminal event per task.
type Emitter struct {
	pub    Publisher
	opts   Options
	logger *log.Logger
	now    func() time.Time

	mu      sync.Mutex
	last    map[string]throttleState
	emitted map[string]EventType
}

// NewEmitter creates an Emitter around pub. A nil pub is allowed; events are then only logged. Zero
// fields of opts take their [DefaultOptions] values.
func NewEmitter(pub Publisher, opts Options, logger *log.Logger) *Emitter {
	if logger == nil {
		logger = log.Default()
	}
	defaults := DefaultOptions()
	if opts.Interval <= 0 {
		opts.Interval = defaults.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Delta <= 0 {
		opts.Delta = defaults.Delta
	}
	return &Emitter{
		pub:     pub,
		opts:    opts,
		logger:  logger.With("component", "emitter"),
		now:     time.Now,
		last:    make(map[string]throttleState),
		emitted: make(map[string]EventType),
	}
}

// Started publishes task_started.
func (e *Emitter) Started(taskID string, kind models.Kind) {
	e.publish(Event{Type: TaskStarted, TaskID: taskID, Kind: kind})
}

// Progress publishes a progress_update when the throttle allows it and reports whether it did.
//
// An event goes out when any of these hold: it is the task's first progress event, at least
// Options.Interval has passed since the last one, progress moved by Options.Delta or more, progress
// reached 0 or 100 from a different value, or boundary is set (the first or last unit of work).
func (e *Emitter) Progress(taskID string, progress int, message string, stats *models.Snapshot, boundary bool) bool {
	if !e.allowProgress(taskID, progress, boundary) {
		e.logger.Debug("progress throttled", "task_id", taskID, "progress", progress)
		return false
	}
	e.publish(Event{Type: ProgressUpdate, TaskID: taskID, Progress: progress, Message: message, Stats: stats})
	return true
}

func (e *Emitter) allowProgress(taskID string, progress int, boundary bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, done := e.emitted[taskID]; done {
		return false
	}

	now := e.now()
	prev, seen := e.last[taskID]
	diff := progress - prev.progress
	if diff < 0 {
		diff = -diff
	}

	ok := !seen ||
		boundary ||
		now.Sub(prev.at) >= e.opts.Interval ||
		diff >= e.opts.Delta ||
		((progress == 0 || progress == 100) && progress != prev.progress)
	if ok {
		e.last[taskID] = throttleState{at: now, progress: progress}
	}
	return ok
}

// Completed publishes task_completed unless a terminal event was already sent for taskID.
func (e *Emitter) Completed(taskID, output string, stats *models.Snapshot) bool {
	return e.terminal(Event{Type: TaskCompleted, TaskID: taskID, Progress: 100, Output: output, Stats: stats})
}

// Failed publishes task_error unless a terminal event was already sent for taskID.
func (e *Emitter) Failed(taskID, errMsg, category string, stats *models.Snapshot) bool {
	return e.terminal(Event{Type: TaskError, TaskID: taskID, Error: errMsg, Category: category, Stats: stats})
}

// Cancelled publishes task_cancelled unless a terminal event was already sent for taskID.
func (e *Emitter) Cancelled(taskID, reason string) bool {
	return e.terminal(Event{Type: TaskCancelled, TaskID: taskID, Reason: reason})
}

func (e *Emitter) terminal(ev Event) bool {
	e.mu.Lock()
	if prev, done := e.emitted[ev.TaskID]; done {
		e.mu.Unlock()
		e.logger.Debug("duplicate terminal event suppressed", "task_id", ev.TaskID, "type", ev.Type, "sent", prev)
		return false
	}
	e.emitted[ev.TaskID] = ev.Type
	e.mu.Unlock()

	e.publish(ev)
	return true
}

// Emitted reports which terminal event, if any, was sent for taskID.
func (e *Emitter) Emitted(taskID string) (EventType, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.emitted[taskID]
	return t, ok
}

// Forget drops the throttle state and dedup guard for taskID. Called when the task is evicted.
func (e *Emitter) Forget(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.last, taskID)
	delete(e.emitted, taskID)
}

// publish sends ev with a bounded timeout. Errors and panics from the publisher are logged and dropped.
func (e *Emitter) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = e.now()
	}
	if e.pub == nil {
		e.logger.Debug("no publisher, event dropped", "task_id", ev.TaskID, "type", ev.Type)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.Timeout)
	defer cancel()

	if err := e.safePublish(ctx, ev); err != nil {
		e.logger.Warn("publish failed", "task_id", ev.TaskID, "type", ev.Type, "err", err)
	}
}

func (e *Emitter) safePublish(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panic: %v", r)
		}
	}()
	return e.pub.Publish(ctx, ev)
}
