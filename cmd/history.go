package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/docdash/internal/formatter"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/shared"
	"github.com/urfave/cli/v3"
)

// HistoryList prints recent task records, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}

	records, err := client.History(ctx, models.Kind(cmd.String("kind")), int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if cmd.Bool("json") {
		return r.writeJSON(records, true)
	}

	text, err := formatter.ExportToText(records)
	if err != nil {
		return err
	}
	return r.writePlain("%s", text)
}

// HistoryClear removes every record. Requires --yes.
func (r *Runner) HistoryClear(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("%w: pass --yes to clear the task history", shared.ErrMissingArgument)
	}
	client, err := r.dashboard()
	if err != nil {
		return err
	}

	if err := client.ClearHistory(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	r.logger.Info("task history cleared")
	return r.writePlain("✓ Task history cleared\n")
}

// HistoryExport writes every record (optionally of one kind) in the chosen format.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	records, err := client.History(ctx, models.Kind(cmd.String("kind")), 0)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	path, err := formatter.WriteExport(records, format, cmd.String("output"))
	if err != nil {
		return err
	}
	r.logger.Info("history exported", "path", path, "records", len(records), "format", format)
	return r.writePlain("✓ Exported %d records to %s\n", len(records), path)
}
