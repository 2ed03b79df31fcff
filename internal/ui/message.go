package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/docdash/internal/models"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgTasksFetched MsgKind = iota
	MsgActionDone
	MsgTick
)

type tasksFetched struct {
	tasks []models.TaskView
	err   error
}

type actionDone struct {
	status string
	err    error
}

// tasksFetchedMsg is the constructor for [MsgTasksFetched]
func tasksFetchedMsg(tasks []models.TaskView, err error) Msg {
	return Msg{kind: MsgTasksFetched, data: tasksFetched{tasks, err}}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(status string, err error) Msg {
	return Msg{kind: MsgActionDone, data: actionDone{status, err}}
}

// tickMsg is the constructor for [MsgTick]
func tickMsg() Msg {
	return Msg{kind: MsgTick}
}
