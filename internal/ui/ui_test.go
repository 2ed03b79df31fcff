package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/services"
)

// fakeDashboard serves a fixed task list and records actions.
type fakeDashboard struct {
	services.Dashboard
	tasks     []models.TaskView
	listErr   error
	cancelled []string
	stops     int
}

func (f *fakeDashboard) ListTasks(context.Context, models.Status) ([]models.TaskView, error) {
	return f.tasks, f.listErr
}

func (f *fakeDashboard) CancelTask(_ context.Context, id string) error {
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeDashboard) EmergencyStop(context.Context, string) (*models.EmergencyStopResponse, error) {
	f.stops++
	return &models.EmergencyStopResponse{Cancelled: []string{"a"}, Forced: []string{}}, nil
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func newTestModel(t *testing.T, client *fakeDashboard) *Model {
	t.Helper()
	m := NewModel(context.Background(), client, 0)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m.Update(m.fetchTasks()())
	return m
}

func run(t *testing.T, m *Model, msg tea.Msg) tea.Msg {
	t.Helper()
	_, cmd := m.Update(msg)
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestModel(t *testing.T) {
	views := []models.TaskView{
		{ID: "1111111111", Kind: models.KindWebScraping, Status: models.StatusProcessing, Progress: 40, Message: "Downloading"},
		{ID: "2222222222", Kind: models.KindFileProcessing, Status: models.StatusCompleted, Progress: 100},
	}

	t.Run("fetch populates list", func(t *testing.T) {
		m := newTestModel(t, &fakeDashboard{tasks: views})
		if len(m.taskList.Items()) != 2 {
			t.Fatalf("expected 2 items, got %d", len(m.taskList.Items()))
		}
		out := m.View()
		if !strings.Contains(out, "1 processing") || !strings.Contains(out, "1 completed") {
			t.Errorf("expected summary counts in view:\n%s", out)
		}
		if !strings.Contains(out, "Downloading") {
			t.Errorf("expected task message in view:\n%s", out)
		}
	})

	t.Run("fetch error is shown", func(t *testing.T) {
		m := newTestModel(t, &fakeDashboard{listErr: errors.New("connection refused")})
		if !strings.Contains(m.View(), "connection refused") {
			t.Errorf("expected error in view:\n%s", m.View())
		}
	})

	t.Run("cancel selected task", func(t *testing.T) {
		client := &fakeDashboard{tasks: views}
		m := newTestModel(t, client)

		msg := run(t, m, keyPress('c'))
		if len(client.cancelled) != 1 || client.cancelled[0] != "1111111111" {
			t.Fatalf("expected first task cancelled, got %v", client.cancelled)
		}
		m.Update(msg)
		if !strings.Contains(m.status, "Cancellation requested for 11111111") {
			t.Errorf("unexpected status %q", m.status)
		}
	})

	t.Run("cancel finished task is refused", func(t *testing.T) {
		client := &fakeDashboard{tasks: views}
		m := newTestModel(t, client)
		m.taskList.Select(1)

		run(t, m, keyPress('c'))
		if len(client.cancelled) != 0 {
			t.Errorf("expected no cancel request, got %v", client.cancelled)
		}
		if !strings.Contains(m.status, "already completed") {
			t.Errorf("unexpected status %q", m.status)
		}
	})

	t.Run("emergency stop asks first", func(t *testing.T) {
		client := &fakeDashboard{tasks: views}
		m := newTestModel(t, client)

		run(t, m, keyPress('x'))
		if m.view != ConfirmView {
			t.Fatalf("expected confirm view, got %v", m.view)
		}
		if !strings.Contains(m.View(), "1 running tasks") {
			t.Errorf("unexpected confirm view:\n%s", m.View())
		}

		run(t, m, keyPress('n'))
		if m.view != ListView || client.stops != 0 {
			t.Fatalf("expected no stop after n, got view %v stops %d", m.view, client.stops)
		}

		run(t, m, keyPress('x'))
		msg := run(t, m, keyPress('y'))
		if client.stops != 1 {
			t.Fatalf("expected one stop, got %d", client.stops)
		}
		m.Update(msg)
		if m.status != "Stopped 1 tasks (0 forced)" {
			t.Errorf("unexpected status %q", m.status)
		}
	})

	t.Run("emergency stop with nothing running", func(t *testing.T) {
		m := newTestModel(t, &fakeDashboard{tasks: views[1:]})
		run(t, m, keyPress('x'))
		if m.view != ListView || m.status != "No running tasks" {
			t.Errorf("expected to stay in list, got view %v status %q", m.view, m.status)
		}
	})

	t.Run("quit", func(t *testing.T) {
		m := newTestModel(t, &fakeDashboard{})
		if msg := run(t, m, keyPress('q')); msg != tea.Quit() {
			t.Errorf("expected quit message, got %#v", msg)
		}
	})
}

func TestTaskItem(t *testing.T) {
	item := taskItem{task: models.TaskView{
		ID: "abcdef123456", Kind: models.KindPDFDownload, Status: models.StatusFailed, Progress: 30, Error: "timeout",
	}}
	if !strings.Contains(item.Title(), "pdf_download abcdef12") {
		t.Errorf("unexpected title %q", item.Title())
	}
	if !strings.Contains(item.Description(), " 30%") || !strings.Contains(item.Description(), "timeout") {
		t.Errorf("unexpected description %q", item.Description())
	}
	if item.FilterValue() != "pdf_download abcdef123456" {
		t.Errorf("unexpected filter value %q", item.FilterValue())
	}
}
