package notify

import (
	"context"
	"time"

	"github.com/desertthunder/docdash/internal/models"
)

// EventType names an outbound event.
type EventType string

const (
	TaskStarted    EventType = "task_started"
	ProgressUpdate EventType = "progress_update"
	TaskCompleted  EventType = "task_completed"
	TaskError      EventType = "task_error"
	TaskCancelled  EventType = "task_cancelled"
)

// Terminal reports whether t ends a task's event stream.
func (t EventType) Terminal() bool {
	return t == TaskCompleted || t == TaskError || t == TaskCancelled
}

// Event is the payload delivered to subscribers.
type Event struct {
	Type     EventType        `json:"type"`
	TaskID   string           `json:"task_id"`
	Kind     models.Kind      `json:"kind,omitempty"`
	Progress int              `json:"progress"`
	Message  string           `json:"message,omitempty"`
	Stats    *models.Snapshot `json:"stats,omitempty"`
	Output   string           `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
	Category string           `json:"category,omitempty"`
	Reason   string           `json:"reason,omitempty"`
	Time     time.Time        `json:"time"`
}

// Publisher delivers events to the outside world.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to [Publisher].
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }
