package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is a durable task history entry. It is created when the task is accepted and updated exactly
// once, on the terminal transition.
type Record struct {
	ID            string          `json:"id"`
	Kind          Kind            `json:"kind"`
	Status        Status          `json:"status"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        string          `json:"output,omitempty"`
	Error         string          `json:"error,omitempty"`
	ErrorCategory string          `json:"error_category,omitempty"`
	Stats         *Snapshot       `json:"stats,omitempty"`
	Duration      float64         `json:"duration_seconds"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
}

// TerminalUpdate carries the fields written to a [Record] when its task ends.
type TerminalUpdate struct {
	Output        string
	Error         string
	ErrorCategory string
	Stats         *Snapshot
	At            time.Time
}

// NewRecord returns a queued record for a newly created task.
func NewRecord(id string, kind Kind, input json.RawMessage, createdAt time.Time) Record {
	return Record{ID: id, Kind: kind, Status: StatusQueued, Input: input, CreatedAt: createdAt}
}

// Validate checks the record's required fields and the output/status invariant.
func (r Record) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("record id is required")
	}
	if r.Kind == "" {
		return fmt.Errorf("record %s: kind is required", r.ID)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("record %s: invalid status %q", r.ID, r.Status)
	}
	if r.Output != "" && r.Status != StatusCompleted {
		return fmt.Errorf("record %s: output set on %s record", r.ID, r.Status)
	}
	return nil
}

// ApplyTerminal moves r into the terminal status and stamps the matching timestamp.
//
// Output is kept only for completed records and Error only for failed ones.
func (r *Record) ApplyTerminal(status Status, u TerminalUpdate) {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}

	r.Status = status
	r.Stats = u.Stats
	r.Duration = max(at.Sub(r.CreatedAt).Seconds(), 0)
	r.Output, r.Error, r.ErrorCategory = "", "", ""

	switch status {
	case StatusCompleted:
		r.Output = u.Output
		r.CompletedAt = &at
	case StatusFailed:
		r.Error = u.Error
		r.ErrorCategory = u.ErrorCategory
		r.FailedAt = &at
	case StatusCancelled:
		r.CancelledAt = &at
	}
}

// TaskView is a point-in-time read of a live task, served from the progress cache.
type TaskView struct {
	ID            string    `json:"task_id"`
	Kind          Kind      `json:"kind"`
	Status        Status    `json:"status"`
	Progress      int       `json:"progress"`
	Message       string    `json:"message,omitempty"`
	Output        string    `json:"output,omitempty"`
	Error         string    `json:"error,omitempty"`
	ErrorCategory string    `json:"error_category,omitempty"`
	Stats         Snapshot  `json:"stats"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateTaskRequest is the body accepted when creating a task.
type CreateTaskRequest struct {
	Kind  Kind            `json:"kind" validate:"required,max=64"`
	Input json.RawMessage `json:"input,omitempty"`
}

// CreateTaskResponse is returned once a task has been accepted.
type CreateTaskResponse struct {
	ID string `json:"task_id"`
}

// EmergencyStopRequest is the body of an emergency stop.
type EmergencyStopRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// EmergencyStopResponse lists what an emergency stop did.
type EmergencyStopResponse struct {
	Cancelled []string `json:"cancelled"`
	Forced    []string `json:"forced"`
}
