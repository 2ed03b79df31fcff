package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/notify"
	"github.com/desertthunder/docdash/internal/repositories"
	"github.com/desertthunder/docdash/internal/shared"
	tu "github.com/desertthunder/docdash/internal/testing"
)

type harness struct {
	m       *Manager
	events  *tu.Recorder[notify.Event]
	history *repositories.FileStore
	logs    *tu.SyncBuffer
}

func newHarness(t *testing.T, opts Options) harness {
	t.Helper()
	logs := &tu.SyncBuffer{}
	logger := shared.NewLogger(logs)
	events := &tu.Recorder[notify.Event]{}
	pub := notify.PublisherFunc(func(_ context.Context, ev notify.Event) error {
		events.Add(ev)
		return nil
	})

	history := repositories.NewFileStore(filepath.Join(t.TempDir(), "task_history.json"), 0, logger)
	m := NewManager(notify.NewEmitter(pub, notify.DefaultOptions(), logger), history, nil, opts, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return harness{m: m, events: events, history: history, logs: logs}
}

func (h harness) wait(t *testing.T, id string) models.TaskView {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := h.m.Wait(ctx, id)
	if err != nil {
		t.Fatalf("wait for %s: %v", id, err)
	}
	return v
}

func (h harness) count(id string, typ notify.EventType) int {
	return h.events.Count(func(ev notify.Event) bool { return ev.TaskID == id && ev.Type == typ })
}

func (h harness) record(t *testing.T, id string) models.Record {
	t.Helper()
	records, err := h.history.Load(context.Background())
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	for _, r := range records {
		if r.ID == id {
			return r
		}
	}
	t.Fatalf("no history record for %s", id)
	return models.Record{}
}

func TestManagerCompletes(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	work := func(ctx context.Context, _ json.RawMessage, r Reporter) (string, error) {
		for i := int64(1); i <= 10; i++ {
			if err := r.Report(i, 10, "Processing files", "file.txt"); err != nil {
				return "", err
			}
		}
		return "/out/manifest.json", nil
	}

	id, err := h.m.Create(models.KindFileProcessing, work, json.RawMessage(`{"source":"docs"}`))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	v := h.wait(t, id)
	if v.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", v.Status)
	}
	if v.Progress != 100 {
		t.Errorf("expected progress 100, got %d", v.Progress)
	}
	if v.Stats.CompletionPercentage != 100.0 {
		t.Errorf("expected completion_percentage 100.0, got %v", v.Stats.CompletionPercentage)
	}
	if v.Stats.CurrentStage != "Completed" {
		t.Errorf("expected current_stage Completed, got %q", v.Stats.CurrentStage)
	}
	if v.Output != "/out/manifest.json" {
		t.Errorf("expected output location, got %q", v.Output)
	}

	if n := h.count(id, notify.TaskStarted); n != 1 {
		t.Errorf("expected 1 task_started, got %d", n)
	}
	if n := h.count(id, notify.TaskCompleted); n != 1 {
		t.Errorf("expected 1 task_completed, got %d", n)
	}

	rec := h.record(t, id)
	if rec.Status != models.StatusCompleted || rec.CompletedAt == nil || rec.Output != "/out/manifest.json" {
		t.Errorf("unexpected history record %+v", rec)
	}
	if rec.Stats == nil || rec.Stats.CompletionPercentage != 100 {
		t.Errorf("expected stats snapshot in history, got %+v", rec.Stats)
	}
}

func TestManagerCancel(t *testing.T) {
	t.Run("next report raises", func(t *testing.T) {
		h := newHarness(t, DefaultOptions())
		started, release := make(chan struct{}), make(chan struct{})
		reportErr := make(chan error, 1)

		work := func(ctx context.Context, _ json.RawMessage, r Reporter) (string, error) {
			_ = r.Report(1, 10, "Downloading", "a.pdf")
			close(started)
			<-release
			err := r.Report(2, 10, "Downloading", "b.pdf")
			reportErr <- err
			if err != nil {
				return "", err
			}
			return "/out", nil
		}

		id, _ := h.m.Create(models.KindPDFDownload, work, nil)
		<-started
		if !h.m.Cancel(id) {
			t.Fatal("cancel should succeed for a live task")
		}
		close(release)

		v := h.wait(t, id)
		if v.Status != models.StatusCancelled {
			t.Fatalf("expected cancelled, got %s", v.Status)
		}
		if err := <-reportErr; !errors.Is(err, ErrCancelled) {
			t.Errorf("expected ErrCancelled from report, got %v", err)
		}
		if v.Output != "" {
			t.Errorf("cancelled task must not have output, got %q", v.Output)
		}
		if n := h.count(id, notify.TaskCompleted); n != 0 {
			t.Errorf("no task_completed expected after cancel, got %d", n)
		}
		if n := h.count(id, notify.TaskCancelled); n != 1 {
			t.Errorf("expected 1 task_cancelled, got %d", n)
		}
		if rec := h.record(t, id); rec.Status != models.StatusCancelled || rec.CancelledAt == nil {
			t.Errorf("unexpected history record %+v", rec)
		}
	})

	t.Run("context unwinds blocking io", func(t *testing.T) {
		h := newHarness(t, DefaultOptions())
		started := make(chan struct{})

		work := func(ctx context.Context, _ json.RawMessage, r Reporter) (string, error) {
			close(started)
			<-r.Context().Done()
			return "", r.Context().Err()
		}

		id, _ := h.m.Create(models.KindWebScraping, work, nil)
		<-started
		h.m.Cancel(id)

		if v := h.wait(t, id); v.Status != models.StatusCancelled {
			t.Errorf("expected cancelled, got %s", v.Status)
		}
	})

	t.Run("check interval", func(t *testing.T) {
		opts := DefaultOptions()
		opts.CancelCheckInterval = 3
		h := newHarness(t, opts)
		started, release := make(chan struct{}), make(chan struct{})
		var afterCancel atomic.Int64

		work := func(ctx context.Context, _ json.RawMessage, r Reporter) (string, error) {
			_ = r.Report(1, 100, "", "")
			close(started)
			<-release
			for i := int64(2); i <= 100; i++ {
				if err := r.Report(i, 100, "", ""); err != nil {
					return "", err
				}
				afterCancel.Add(1)
			}
			return "/out", nil
		}

		id, _ := h.m.Create(models.KindFileProcessing, work, nil)
		<-started
		h.m.Cancel(id)
		close(release)

		if v := h.wait(t, id); v.Status != models.StatusCancelled {
			t.Fatalf("expected cancelled, got %s", v.Status)
		}
		if n := afterCancel.Load(); n != 2 {
			t.Errorf("expected 2 reports to pass before the next check, got %d", n)
		}
	})

	t.Run("unknown and finished tasks", func(t *testing.T) {
		h := newHarness(t, DefaultOptions())
		if h.m.Cancel("missing") {
			t.Error("cancel of unknown task should be false")
		}

		id, _ := h.m.Create(models.KindPDFDownload, func(context.Context, json.RawMessage, Reporter) (string, error) {
			return "/out", nil
		}, nil)
		h.wait(t, id)
		if h.m.Cancel(id) {
			t.Error("cancel of a completed task should be false")
		}
	})
}

func TestManagerFailures(t *testing.T) {
	t.Run("classified error", func(t *testing.T) {
		h := newHarness(t, DefaultOptions())
		id, _ := h.m.Create(models.KindWebScraping, func(context.Context, json.RawMessage, Reporter) (string, error) {
			return "", errors.New("dial tcp: connection refused")
		}, nil)

		v := h.wait(t, id)
		if v.Status != models.StatusFailed {
			t.Fatalf("expected failed, got %s", v.Status)
		}
		if v.ErrorCategory != "network" {
			t.Errorf("expected network category, got %q", v.ErrorCategory)
		}
		if n := h.count(id, notify.TaskError); n != 1 {
			t.Errorf("expected 1 task_error, got %d", n)
		}
		rec := h.record(t, id)
		if rec.ErrorCategory != "network" || rec.FailedAt == nil {
			t.Errorf("unexpected history record %+v", rec)
		}
	})

	t.Run("panic is contained", func(t *testing.T) {
		h := newHarness(t, DefaultOptions())
		id, _ := h.m.Create(models.KindPDFDownload, func(context.Context, json.RawMessage, Reporter) (string, error) {
			panic("nil map write")
		}, nil)

		v := h.wait(t, id)
		if v.Status != models.StatusFailed || v.ErrorCategory != "general" {
			t.Errorf("expected failed/general, got %s/%s", v.Status, v.ErrorCategory)
		}
		if !strings.Contains(v.Error, "nil map write") {
			t.Errorf("expected panic value in error, got %q", v.Error)
		}

		other, _ := h.m.Create(models.KindPDFDownload, func(context.Context, json.RawMessage, Reporter) (string, error) {
			return "/ok", nil
		}, nil)
		if v := h.wait(t, other); v.Status != models.StatusCompleted {
			t.Errorf("sibling task should be unaffected, got %s", v.Status)
		}
	})

	t.Run("invalid create", func(t *testing.T) {
		h := newHarness(t, DefaultOptions())
		if _, err := h.m.Create(models.KindPDFDownload, nil, nil); err == nil {
			t.Error("expected error for nil work")
		}
		if _, err := h.m.Create("", func(context.Context, json.RawMessage, Reporter) (string, error) { return "", nil }, nil); err == nil {
			t.Error("expected error for empty kind")
		}
		if _, err := h.m.Submit("teleport", nil); !errors.Is(err, shared.ErrUnknownKind) {
			t.Errorf("expected ErrUnknownKind, got %v", err)
		}
	})
}

func TestManagerProgress(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	step, release := make(chan struct{}), make(chan struct{})

	work := func(ctx context.Context, _ json.RawMessage, r Reporter) (string, error) {
		_ = r.Report(5, 10, "Scanning", "")
		_ = r.Report(5, 20, "Rescanned", "")
		step <- struct{}{}
		<-release
		r.AddBytes(4096)
		r.AddErrors(1)
		_ = r.Report(30, 20, "Overshoot", "")
		step <- struct{}{}
		<-release
		return "/out", nil
	}

	id, _ := h.m.Create(models.KindFileProcessing, work, nil)

	<-step
	v, ok := h.m.Status(id)
	if !ok {
		t.Fatal("status should be cached")
	}
	if v.Progress != 50 {
		t.Errorf("progress must not decrease when total grows, got %d", v.Progress)
	}
	if v.Status != models.StatusProcessing {
		t.Errorf("expected processing, got %s", v.Status)
	}
	release <- struct{}{}

	<-step
	v, _ = h.m.Status(id)
	if v.Progress != 100 || v.Stats.CompletionPercentage != 100 {
		t.Errorf("overshoot must clamp to 100, got %d / %v", v.Progress, v.Stats.CompletionPercentage)
	}
	if v.Stats.RawRatio != 1.5 {
		t.Errorf("expected raw ratio 1.5, got %v", v.Stats.RawRatio)
	}
	if v.Stats.Bytes != 4096 || v.Stats.Errors != 1 {
		t.Errorf("counters not applied: %+v", v.Stats)
	}
	if v.Message != "Overshoot" {
		t.Errorf("expected stage message, got %q", v.Message)
	}
	close(release)

	h.wait(t, id)
	if len(h.m.List()) != 1 {
		t.Errorf("expected one listed task, got %d", len(h.m.List()))
	}
}

func TestManagerEmergencyStop(t *testing.T) {
	opts := DefaultOptions()
	opts.GracePeriod = 200 * time.Millisecond
	h := newHarness(t, opts)

	coopStarted, stuckStarted, unstick := make(chan struct{}), make(chan struct{}), make(chan struct{})
	cooperative, _ := h.m.Create(models.KindWebScraping, func(ctx context.Context, _ json.RawMessage, r Reporter) (string, error) {
		close(coopStarted)
		<-ctx.Done()
		return "", ErrCancelled
	}, nil)
	stuck, _ := h.m.Create(models.KindPlaylistDownload, func(context.Context, json.RawMessage, Reporter) (string, error) {
		close(stuckStarted)
		<-unstick
		return "/late", nil
	}, nil)
	<-coopStarted
	<-stuckStarted

	res := h.m.EmergencyStop(context.Background(), "user pressed stop")
	if len(res.Cancelled) != 2 {
		t.Errorf("expected 2 cancelled, got %v", res.Cancelled)
	}
	if len(res.Forced) != 1 || res.Forced[0] != stuck {
		t.Errorf("expected only the stuck task to be forced, got %v", res.Forced)
	}

	for _, id := range []string{cooperative, stuck} {
		if v, _ := h.m.Status(id); v.Status != models.StatusCancelled {
			t.Errorf("%s: expected cancelled, got %s", id, v.Status)
		}
	}
	if active := h.m.Registry().Active(); len(active) != 0 {
		t.Errorf("no task should be reported active, got %d", len(active))
	}

	close(unstick)
	h.wait(t, stuck)
	if v, _ := h.m.Status(stuck); v.Status != models.StatusCancelled || v.Output != "" {
		t.Errorf("late return must not complete a forced task: %+v", v)
	}
	if n := h.count(stuck, notify.TaskCompleted); n != 0 {
		t.Errorf("unexpected task_completed for forced task")
	}
	if n := h.count(stuck, notify.TaskCancelled); n != 1 {
		t.Errorf("expected one task_cancelled, got %d", n)
	}
	if strings.Contains(h.logs.String(), "task completed") {
		t.Errorf("a forced task must not be logged as completed:\n%s", h.logs.String())
	}
}

func TestEmergencyStopWhileReporting(t *testing.T) {
	opts := DefaultOptions()
	opts.GracePeriod = time.Millisecond

	for i := range 50 {
		h := newHarness(t, opts)
		started, release := make(chan struct{}), make(chan struct{})
		id, err := h.m.Create(models.KindPlaylistDownload, func(_ context.Context, _ json.RawMessage, r Reporter) (string, error) {
			close(started)
			for {
				select {
				case <-release:
					return "", nil
				default:
					r.Note("busy")
				}
			}
		}, nil)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		<-started

		res := h.m.EmergencyStop(context.Background(), "stop")
		if len(res.Forced) != 1 {
			t.Fatalf("round %d: expected the busy task to be forced, got %v", i, res.Forced)
		}
		if v, _ := h.m.Status(id); v.Status != models.StatusCancelled {
			t.Fatalf("round %d: expected cancelled right after stop, got %s", i, v.Status)
		}
		time.Sleep(2 * time.Millisecond)
		if v, _ := h.m.Status(id); v.Status != models.StatusCancelled {
			t.Fatalf("round %d: a late note overwrote the terminal entry, got %s", i, v.Status)
		}
		close(release)
		h.wait(t, id)
		if v, _ := h.m.Status(id); v.Status != models.StatusCancelled {
			t.Fatalf("round %d: expected cancelled after the worker returned, got %s", i, v.Status)
		}
	}
}

func TestManagerConcurrentCreate(t *testing.T) {
	h := newHarness(t, DefaultOptions())

	const n = 20
	ids := make(chan string, n)
	errs := make(chan error, n)
	for range n {
		go func() {
			id, err := h.m.Create(models.KindPDFDownload, func(context.Context, json.RawMessage, Reporter) (string, error) {
				return "/out", nil
			}, json.RawMessage(`{"url":"https://example.com/a.pdf"}`))
			ids <- id
			errs <- err
		}()
	}
	for range n {
		if err := <-errs; err != nil {
			t.Fatalf("create: %v", err)
		}
		h.wait(t, <-ids)
	}

	records, err := h.history.Load(context.Background())
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(records) != n {
		t.Errorf("expected %d history records, got %d", n, len(records))
	}
	for _, r := range records {
		if r.Status != models.StatusCompleted {
			t.Errorf("%s: expected completed record, got %s", r.ID, r.Status)
		}
	}
}

func TestManagerEvictAndSweep(t *testing.T) {
	opts := DefaultOptions()
	opts.EvictAfter = 0
	opts.CacheMaxAge = 0
	h := newHarness(t, opts)

	id, _ := h.m.Create(models.KindPDFDownload, func(context.Context, json.RawMessage, Reporter) (string, error) {
		return "/out", nil
	}, nil)
	h.wait(t, id)

	time.Sleep(time.Millisecond)
	evicted := h.m.Evict()
	if len(evicted) != 1 || evicted[0] != id {
		t.Fatalf("expected %s evicted, got %v", id, evicted)
	}
	if h.m.Registry().Len() != 0 {
		t.Error("registry should be empty after eviction")
	}
	if _, ok := h.m.Status(id); !ok {
		t.Error("cache should outlive the registry entry")
	}

	time.Sleep(time.Millisecond)
	if _, swept := h.m.Sweep(); swept != 1 {
		t.Errorf("expected one swept cache entry, got %d", swept)
	}
	if _, ok := h.m.Status(id); ok {
		t.Error("swept entry should be gone")
	}
}

func TestManagerShutdown(t *testing.T) {
	h := newHarness(t, DefaultOptions())
	started := make(chan struct{})
	id, _ := h.m.Create(models.KindWebScraping, func(ctx context.Context, _ json.RawMessage, r Reporter) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	}, nil)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if v, _ := h.m.Status(id); v.Status != models.StatusCancelled {
		t.Errorf("expected cancelled after shutdown, got %s", v.Status)
	}
	if _, err := h.m.Create(models.KindWebScraping, func(context.Context, json.RawMessage, Reporter) (string, error) { return "", nil }, nil); !errors.Is(err, shared.ErrServiceUnavailable) {
		t.Errorf("expected ErrServiceUnavailable after shutdown, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(shared.DefaultConfig().Engine)
	if opts.CancelCheckInterval != 1 || opts.GracePeriod != 5*time.Second || opts.EvictAfter != 5*time.Minute {
		t.Errorf("unexpected options %+v", opts)
	}
}
