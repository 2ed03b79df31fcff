package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/notify"
	"github.com/desertthunder/docdash/internal/recovery"
	"github.com/desertthunder/docdash/internal/repositories"
	"github.com/desertthunder/docdash/internal/shared"
)

var errManagerClosed = fmt.Errorf("%w: task manager is shut down", shared.ErrServiceUnavailable)

// Options tunes the [Manager].
type Options struct {
	CancelCheckInterval int           // Report checks the cancel flag every N calls
	GracePeriod         time.Duration // EmergencyStop wait before forcing tasks to cancelled
	EvictAfter          time.Duration // finished tasks leave the registry after this long
	CacheMaxAge         time.Duration // terminal cache entries are dropped after this long
	StoreTimeout        time.Duration // bound on each history store call
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		CancelCheckInterval: 1,
		GracePeriod:         5 * time.Second,
		EvictAfter:          5 * time.Minute,
		CacheMaxAge:         time.Hour,
		StoreTimeout:        5 * time.Second,
	}
}

// OptionsFromConfig reads the [engine] config section.
func OptionsFromConfig(c shared.EngineConfig) Options {
	opts := DefaultOptions()
	if c.CancelCheckInterval > 0 {
		opts.CancelCheckInterval = c.CancelCheckInterval
	}
	if c.GracePeriod.Duration > 0 {
		opts.GracePeriod = c.GracePeriod.Duration
	}
	if c.EvictAfter.Duration > 0 {
		opts.EvictAfter = c.EvictAfter.Duration
	}
	if c.CacheMaxAge.Duration > 0 {
		opts.CacheMaxAge = c.CacheMaxAge.Duration
	}
	return opts
}

// Manager creates, tracks and cancels tasks. One Manager is built at startup and shared by every caller.
type Manager struct {
	registry *Registry
	cache    *ProgressCache
	emitter  *notify.Emitter
	history  repositories.HistoryStore
	catalog  *Catalog
	opts     Options
	logger   *log.Logger
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewManager wires a Manager. history and catalog may be nil.
func NewManager(emitter *notify.Emitter, history repositories.HistoryStore, catalog *Catalog, opts Options, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	if opts.CancelCheckInterval <= 0 {
		opts.CancelCheckInterval = 1
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = DefaultOptions().StoreTimeout
	}
	if catalog == nil {
		catalog = NewCatalog()
	}
	if emitter == nil {
		emitter = notify.NewEmitter(nil, notify.DefaultOptions(), logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: NewRegistry(),
		cache:    NewProgressCache(),
		emitter:  emitter,
		history:  history,
		catalog:  catalog,
		opts:     opts,
		logger:   logger.With("component", "tasks"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Registry exposes the live task map.
func (m *Manager) Registry() *Registry { return m.registry }

// Cache exposes the progress cache.
func (m *Manager) Cache() *ProgressCache { return m.cache }

// Catalog exposes the registered work functions.
func (m *Manager) Catalog() *Catalog { return m.catalog }

// History returns the durable store, which may be nil.
func (m *Manager) History() repositories.HistoryStore { return m.history }

// Submit creates a task running the catalog's work function for kind.
func (m *Manager) Submit(kind models.Kind, input json.RawMessage) (string, error) {
	work, ok := m.catalog.Lookup(kind)
	if !ok {
		return "", fmt.Errorf("%w: %s", shared.ErrUnknownKind, kind)
	}
	return m.Create(kind, work, input)
}

// Create registers a queued task, records it and starts work on its own goroutine. It returns without
// waiting for the work.
func (m *Manager) Create(kind models.Kind, work WorkFunc, input json.RawMessage) (string, error) {
	if kind == "" {
		return "", fmt.Errorf("%w: task kind", shared.ErrMissingArgument)
	}
	if work == nil {
		return "", fmt.Errorf("%w: nil work function", shared.ErrInvalidArgument)
	}

	if m.isClosed() {
		return "", errManagerClosed
	}

	now := m.now()
	t := newTask(m.ctx, shared.GenerateID(), kind, input, now)

	// The history write happens outside m.mu so creation is not serialized behind store I/O.
	m.storeAppend(models.NewRecord(t.id, kind, input, now))

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.storeTerminal(t.id, models.StatusCancelled, models.TerminalUpdate{At: m.now()})
		return "", errManagerClosed
	}
	if err := m.registry.Add(t); err != nil {
		m.mu.Unlock()
		return "", err
	}
	t.mu.Lock()
	m.cache.Set(t.entryLocked(now))
	t.mu.Unlock()
	m.wg.Add(1)
	m.mu.Unlock()

	m.emitter.Started(t.id, kind)
	m.logger.Info("task created", "task_id", t.id, "kind", kind)

	go m.run(t, work)
	return t.id, nil
}

func (m *Manager) run(t *Task, work WorkFunc) {
	defer m.wg.Done()
	defer close(t.done)
	defer t.cancel()

	logger := m.logger.With("task_id", t.id, "kind", t.kind)

	now := m.now()
	t.mu.Lock()
	if t.cancelled.Load() || !t.status.CanTransition(models.StatusProcessing) {
		t.mu.Unlock()
		m.finish(t, models.StatusCancelled, "", nil)
		return
	}
	t.status = models.StatusProcessing
	t.message = "Processing"
	t.stats.StartedAt = now
	m.cache.Set(t.entryLocked(now))
	t.mu.Unlock()

	logger.Debug("task started")
	output, err := m.invoke(t, work)

	status, cause := models.StatusFailed, err
	switch {
	case err == nil:
		status = models.StatusCompleted
	case errors.Is(err, ErrCancelled) || t.cancelled.Load():
		status, cause, output = models.StatusCancelled, nil, ""
	default:
		output = ""
	}

	if !m.finish(t, status, output, cause) {
		logger.Debug("worker returned after the task was finished", "status", t.Status(), "err", err)
		return
	}
	switch status {
	case models.StatusCompleted:
		logger.Info("task completed", "output", output)
	case models.StatusCancelled:
		logger.Info("task cancelled")
	default:
		logger.Error("task failed", "err", err)
	}
}

// invoke runs work, turning a panic into an error.
func (m *Manager) invoke(t *Task, work WorkFunc) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("task panicked", "task_id", t.id, "panic", r, "stack", string(debug.Stack()))
			output, err = "", fmt.Errorf("%w: %v", shared.ErrWorkerPanic, r)
		}
	}()
	return work(t.ctx, t.input, &reporter{m: m, t: t})
}

// finish moves t into status once. It reports false when t was already terminal.
func (m *Manager) finish(t *Task, status models.Status, output string, cause error) bool {
	now := m.now()

	t.mu.Lock()
	if !t.status.CanTransition(status) || !status.Terminal() {
		t.mu.Unlock()
		return false
	}

	t.status = status
	t.endedAt = now
	t.stats.FinishedAt = now
	if t.stats.StartedAt.IsZero() {
		t.stats.StartedAt = now
	}

	var classification recovery.Classification
	switch status {
	case models.StatusCompleted:
		t.progress = 100
		t.output = output
		t.stats.Completed = true
		t.message = models.StageCompleted
	case models.StatusFailed:
		classification = recovery.Classify(cause)
		t.errMsg = cause.Error()
		t.category = classification.Category.String()
		t.message = fmt.Sprintf("Failed (%s): %s", t.category, classification.Strategy)
	case models.StatusCancelled:
		t.message = "Cancelled"
		if t.cancelReason != "" {
			t.message += ": " + t.cancelReason
		}
	}

	snap := t.stats.Snapshot(now)
	entry := t.entryLocked(now)
	reason := t.cancelReason
	// Set under t.mu so a concurrent Report or Note cannot overwrite the terminal entry.
	m.cache.Set(entry)
	t.mu.Unlock()
	m.storeTerminal(t.id, status, models.TerminalUpdate{
		Output:        entry.Output,
		Error:         entry.Error,
		ErrorCategory: entry.Category,
		Stats:         &snap,
		At:            now,
	})

	switch status {
	case models.StatusCompleted:
		m.emitter.Completed(t.id, output, &snap)
	case models.StatusFailed:
		m.emitter.Failed(t.id, entry.Error, entry.Category, &snap)
	case models.StatusCancelled:
		m.emitter.Cancelled(t.id, reason)
	}
	return true
}

// Cancel asks the task to stop. It reports whether the task exists and was not already terminal.
func (m *Manager) Cancel(id string) bool {
	t, ok := m.registry.Get(id)
	if !ok {
		return false
	}
	if !t.requestCancel("cancelled by user") {
		return false
	}
	m.logger.Info("cancel requested", "task_id", id)
	return true
}

// StopResult lists what [Manager.EmergencyStop] did.
type StopResult struct {
	Cancelled []string // tasks asked to stop
	Forced    []string // tasks still running after the grace period and marked cancelled
}

// EmergencyStop cancels every live task, waits up to the grace period (or until ctx ends) and then marks
// any task whose worker has not returned as cancelled. The worker of a forced task may still be running.
func (m *Manager) EmergencyStop(ctx context.Context, reason string) StopResult {
	if reason == "" {
		reason = "emergency stop"
	}

	var res StopResult
	active := m.registry.Active()
	for _, t := range active {
		if t.requestCancel(reason) {
			res.Cancelled = append(res.Cancelled, t.id)
		}
	}
	m.logger.Warn("emergency stop", "reason", reason, "tasks", len(res.Cancelled))

	timer := time.NewTimer(m.opts.GracePeriod)
	defer timer.Stop()

	expired := false
	for _, t := range active {
		if !expired {
			select {
			case <-t.done:
				continue
			case <-timer.C:
				expired = true
			case <-ctx.Done():
				expired = true
			}
		}

		select {
		case <-t.done:
		default:
			if m.finish(t, models.StatusCancelled, "", nil) {
				res.Forced = append(res.Forced, t.id)
				m.logger.Warn("task forced to cancelled", "task_id", t.id)
			}
		}
	}
	return res
}

// Status returns a point-in-time view of the task from the progress cache.
func (m *Manager) Status(id string) (models.TaskView, bool) {
	return m.cache.Get(id)
}

// List returns views of every cached task, newest first.
func (m *Manager) List() []models.TaskView {
	return m.cache.All()
}

// Wait blocks until the task's worker returns or ctx ends, then returns its view.
func (m *Manager) Wait(ctx context.Context, id string) (models.TaskView, error) {
	t, ok := m.registry.Get(id)
	if !ok {
		if v, ok := m.cache.Get(id); ok && v.Status.Terminal() {
			return v, nil
		}
		return models.TaskView{}, fmt.Errorf("%w: %s", shared.ErrTaskNotFound, id)
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return models.TaskView{}, ctx.Err()
	}
	v, _ := m.cache.Get(id)
	return v, nil
}

// Evict removes tasks that ended more than EvictAfter ago from the registry and clears their dedup guard.
func (m *Manager) Evict() []string {
	cutoff := m.now().Add(-m.opts.EvictAfter)

	var evicted []string
	for _, t := range m.registry.All() {
		ended := t.EndedAt()
		if ended.IsZero() || ended.After(cutoff) {
			continue
		}
		if m.registry.Remove(t.id) {
			m.emitter.Forget(t.id)
			evicted = append(evicted, t.id)
		}
	}
	return evicted
}

// Sweep evicts finished tasks and drops stale cache entries.
func (m *Manager) Sweep() (evicted, swept int) {
	evicted = len(m.Evict())
	swept = len(m.cache.Sweep(m.opts.CacheMaxAge))
	if evicted > 0 || swept > 0 {
		m.logger.Debug("sweep", "evicted", evicted, "swept", swept)
	}
	return evicted, swept
}

// Shutdown stops accepting tasks, runs an emergency stop and waits for workers until ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.EmergencyStop(ctx, "shutdown")
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) storeAppend(rec models.Record) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.StoreTimeout)
	defer cancel()
	if err := m.history.Append(ctx, rec); err != nil {
		m.logger.Warn("history append failed", "task_id", rec.ID, "err", err)
	}
}

func (m *Manager) storeTerminal(id string, status models.Status, u models.TerminalUpdate) {
	if m.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.StoreTimeout)
	defer cancel()
	if err := m.history.MarkTerminal(ctx, id, status, u); err != nil {
		m.logger.Warn("history update failed", "task_id", id, "status", status, "err", err)
	}
}
