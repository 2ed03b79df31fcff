package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/services"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ListView ViewState = iota
	ConfirmView
)

// DefaultInterval is how often the task list is refreshed.
const DefaultInterval = time.Second

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	client   services.Dashboard
	interval time.Duration
	width    int
	height   int
	taskList list.Model
	tasks    []models.TaskView
	status   string
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a new TUI model polling client every interval.
func NewModel(ctx context.Context, client services.Dashboard, interval time.Duration) *Model {
	if interval <= 0 {
		interval = DefaultInterval
	}

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "docdash tasks"
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.SetStatusBarItemName("task", "tasks")

	return &Model{
		ctx:      ctx,
		view:     ListView,
		client:   client,
		interval: interval,
		taskList: l,
		help:     help.New(),
		keys:     newKeyMap(),
	}
}

// Init starts polling.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchTasks(), m.tick())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(msg.Width-4, msg.Height-6)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case ListView:
			return m.handleListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		}

	case Msg:
		switch msg.kind {
		case MsgTick:
			return m, tea.Batch(m.fetchTasks(), m.tick())

		case MsgTasksFetched:
			data := msg.data.(tasksFetched)
			m.err = data.err
			if data.err != nil {
				return m, nil
			}
			m.tasks = data.tasks
			return m, m.taskList.SetItems(taskItems(data.tasks))

		case MsgActionDone:
			data := msg.data.(actionDone)
			m.err = data.err
			if data.err == nil {
				m.status = data.status
			}
			return m, m.fetchTasks()
		}
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ConfirmView:
		return m.renderConfirm()
	default:
		return m.renderList()
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchTasks()
	case key.Matches(msg, m.keys.stop):
		if m.activeCount() == 0 {
			m.status = "No running tasks"
			return m, nil
		}
		m.view = ConfirmView
		return m, nil
	case key.Matches(msg, m.keys.cancel):
		selected, ok := m.taskList.SelectedItem().(taskItem)
		if !ok {
			return m, nil
		}
		if selected.task.Status.Terminal() {
			m.status = fmt.Sprintf("Task %s already %s", shortID(selected.task.ID), selected.task.Status)
			return m, nil
		}
		return m, m.cancelTask(selected.task.ID)
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.yes):
		m.view = ListView
		return m, m.emergencyStop()
	case key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.quit):
		m.view = ListView
		return m, nil
	}
	return m, nil
}

func (m *Model) activeCount() int {
	n := 0
	for _, t := range m.tasks {
		if !t.Status.Terminal() {
			n++
		}
	}
	return n
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(time.Time) tea.Msg { return tickMsg() })
}

func (m *Model) fetchTasks() tea.Cmd {
	return func() tea.Msg {
		tasks, err := m.client.ListTasks(m.ctx, "")
		return tasksFetchedMsg(tasks, err)
	}
}

func (m *Model) cancelTask(id string) tea.Cmd {
	return func() tea.Msg {
		if err := m.client.CancelTask(m.ctx, id); err != nil {
			return actionDoneMsg("", err)
		}
		return actionDoneMsg(fmt.Sprintf("Cancellation requested for %s", shortID(id)), nil)
	}
}

func (m *Model) emergencyStop() tea.Cmd {
	return func() tea.Msg {
		res, err := m.client.EmergencyStop(m.ctx, "stopped from dashboard")
		if err != nil {
			return actionDoneMsg("", err)
		}
		return actionDoneMsg(fmt.Sprintf("Stopped %d tasks (%d forced)", len(res.Cancelled), len(res.Forced)), nil)
	}
}

func (m *Model) summary() string {
	counts := make(map[models.Status]int)
	for _, t := range m.tasks {
		counts[t.Status]++
	}
	parts := make([]string, 0, 5)
	for _, s := range []models.Status{
		models.StatusQueued, models.StatusProcessing, models.StatusCompleted, models.StatusFailed, models.StatusCancelled,
	} {
		if counts[s] > 0 {
			parts = append(parts, styles.Status(s).Render(fmt.Sprintf("%d %s", counts[s], s)))
		}
	}
	if len(parts) == 0 {
		return styles.help.Render("no tasks yet")
	}
	return strings.Join(parts, "  ")
}

func (m *Model) renderList() string {
	var footer string
	switch {
	case m.err != nil:
		footer = styles.err.Render(fmt.Sprintf("Error: %v", m.err))
	case m.status != "":
		footer = styles.ok.Render(m.status)
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", m.summary(), m.taskList.View(), footer, m.help.View(m.keys))
}

func (m *Model) renderConfirm() string {
	title := styles.title.Render("Emergency stop?")
	info := styles.warn.Render(fmt.Sprintf("\n%d running tasks will be cancelled.\n", m.activeCount()))

	helpKeys := []key.Binding{m.keys.yes, m.keys.no}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}
