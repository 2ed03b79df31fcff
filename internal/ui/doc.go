// Package ui implements an interactive terminal dashboard using bubbletea's Elm architecture.
//
// The TUI polls a running docdash server through [services.Dashboard] and shows two views:
//  1. [ListView] : live tasks with status, progress bar and current message
//  2. [ConfirmView] : confirm an emergency stop of every running task
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// A tick message drives polling, so a slow server never blocks key handling.
//
// Keyboard navigation uses vim-style bindings (j/k, c, x, y/n, r, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
