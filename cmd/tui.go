package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/docdash/internal/shared"
	"github.com/desertthunder/docdash/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the live task dashboard against the configured server.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}
	if _, err := client.Health(ctx); err != nil {
		return fmt.Errorf("%w: is 'docdash serve' running? %v", shared.ErrServiceUnavailable, err)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	model := ui.NewModel(ctx, client, cmd.Duration("interval"))
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
