package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/desertthunder/docdash/internal/formatter"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/shared"
	"github.com/urfave/cli/v3"
)

const waitPollInterval = 500 * time.Millisecond

// TaskCreate submits a task of --kind with the JSON from --input or --input-file.
func (r *Runner) TaskCreate(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}

	input, err := readInput(cmd.String("input"), cmd.String("input-file"))
	if err != nil {
		return err
	}

	req := models.CreateTaskRequest{Kind: models.Kind(cmd.String("kind")), Input: input}
	id, err := client.CreateTask(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	r.logger.Debug("task created", "task_id", id, "kind", req.Kind)
	r.writePlain("%s\n", id)

	if !cmd.Bool("wait") {
		return nil
	}
	view, err := r.waitFor(ctx, id)
	if err != nil {
		return err
	}
	return r.writeTask(view)
}

// readInput returns inline JSON or the contents of path; exactly one may be set.
func readInput(inline, path string) (json.RawMessage, error) {
	if inline != "" && path != "" {
		return nil, fmt.Errorf("%w: cannot specify both --input and --input-file", shared.ErrInvalidArgument)
	}

	data := []byte(inline)
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		data = b
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: input is not valid JSON", shared.ErrInvalidArgument)
	}
	return json.RawMessage(data), nil
}

func (r *Runner) waitFor(ctx context.Context, id string) (*models.TaskView, error) {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for {
		view, err := r.client.GetTask(ctx, id)
		if err != nil {
			return nil, err
		}
		if view.Status.Terminal() {
			return view, nil
		}
		r.logger.Debug("waiting", "task_id", id, "progress", view.Progress, "message", view.Message)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TaskStatus prints one task's live snapshot.
func (r *Runner) TaskStatus(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	view, err := client.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(view, true)
	}
	return r.writeTask(view)
}

func (r *Runner) writeTask(v *models.TaskView) error {
	r.writePlainHeader(fmt.Sprintf("Task %s", v.ID))
	r.writePlain("Kind:      %s\n", v.Kind)
	r.writePlain("Status:    %s\n", v.Status)
	r.writePlain("Progress:  %d%% (%d/%d %s)\n", v.Progress, v.Stats.Processed, v.Stats.Total, v.Kind.Unit())
	if v.Message != "" {
		r.writePlain("Message:   %s\n", v.Message)
	}
	r.writePlain("Duration:  %s\n", v.Stats.Duration)
	if v.Stats.Rate != "" {
		r.writePlain("Rate:      %s\n", v.Stats.Rate)
	}
	if v.Output != "" {
		r.writePlain("Output:    %s\n", v.Output)
	}
	if v.Error != "" {
		return r.writePlain("Error:     %s [%s]\n", v.Error, v.ErrorCategory)
	}
	return nil
}

// TaskList prints live tasks as a table.
func (r *Runner) TaskList(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}

	var status models.Status
	if s := cmd.String("status"); s != "" {
		if status, err = models.ParseStatus(s); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrInvalidFlag, err)
		}
	}

	views, err := client.ListTasks(ctx, status)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(views, true)
	}
	if len(views) == 0 {
		return r.writePlain("No tasks.\n")
	}
	return r.writePlain("%s", formatter.TaskTable(views))
}

// TaskCancel asks one task to stop.
func (r *Runner) TaskCancel(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: task id", shared.ErrMissingArgument)
	}

	if err := client.CancelTask(ctx, id); err != nil {
		return err
	}
	r.logger.Info("cancellation requested", "task_id", id)
	return r.writePlain("✓ Cancellation requested for %s\n", id)
}

// TaskStop runs an emergency stop on the server.
func (r *Runner) TaskStop(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}

	res, err := client.EmergencyStop(ctx, cmd.String("reason"))
	if err != nil {
		return err
	}
	r.writePlain("✓ Stopped %d tasks", len(res.Cancelled))
	if len(res.Forced) > 0 {
		r.writePlain(" (%d forced after the grace period)", len(res.Forced))
	}
	return r.writePlain("\n")
}

// TaskKinds lists the kinds the server has work functions for.
func (r *Runner) TaskKinds(ctx context.Context, cmd *cli.Command) error {
	client, err := r.dashboard()
	if err != nil {
		return err
	}
	kinds, err := client.Kinds(ctx)
	if err != nil {
		return err
	}
	for _, k := range kinds {
		r.writePlain("%s\n", k)
	}
	return nil
}
