// package services defines the [Dashboard] interface for talking to a running docdash server
package services

import (
	"context"

	"github.com/desertthunder/docdash/internal/models"
)

// Dashboard is the set of operations the CLI and TUI perform against the task API.
type Dashboard interface {
	// CreateTask submits a task and returns its id.
	CreateTask(ctx context.Context, req models.CreateTaskRequest) (string, error)

	// GetTask returns the live snapshot of one task.
	GetTask(ctx context.Context, id string) (*models.TaskView, error)

	// ListTasks returns live snapshots, filtered by status when it is non-empty.
	ListTasks(ctx context.Context, status models.Status) ([]models.TaskView, error)

	// CancelTask asks one task to stop.
	CancelTask(ctx context.Context, id string) error

	// EmergencyStop cancels every running task.
	EmergencyStop(ctx context.Context, reason string) (*models.EmergencyStopResponse, error)

	// Kinds lists the task kinds the server can run.
	Kinds(ctx context.Context) ([]models.Kind, error)

	// History returns durable records, newest first.
	History(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error)

	// ClearHistory removes every durable record.
	ClearHistory(ctx context.Context) error

	// Health returns the server's health document.
	Health(ctx context.Context) (map[string]any, error)
}
