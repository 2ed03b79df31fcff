package models

import (
	"math"
	"time"

	"github.com/desertthunder/docdash/internal/shared"
)

// StageCompleted is the stage label of a task that finished successfully.
const StageCompleted = "Completed"

// Progress returns processed/total as a percentage rounded to the nearest integer and clamped to [0, 100].
// A non-positive total yields 0.
func Progress(processed, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(processed) / float64(total) * 100))
	return min(max(p, 0), 100)
}

// Stats holds the raw counters of a task. It is owned by the task's worker.
//
// Total is an estimate and may be exceeded once scanning discovers more items than first counted.
type Stats struct {
	Total       int64     `json:"total"`
	Processed   int64     `json:"processed"`
	Errors      int64     `json:"errors"`
	Bytes       int64     `json:"bytes"`
	Unit        string    `json:"unit,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	CurrentItem string    `json:"current_item,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
	Completed   bool      `json:"completed"`
}

// Snapshot is a point-in-time view of [Stats] with derived fields.
type Snapshot struct {
	Total                int64   `json:"total"`
	Processed            int64   `json:"processed"`
	Errors               int64   `json:"errors"`
	Bytes                int64   `json:"bytes"`
	ElapsedSeconds       float64 `json:"elapsed_seconds"`
	CompletionPercentage float64 `json:"completion_percentage"`
	RawRatio             float64 `json:"raw_ratio"`
	Duration             string  `json:"duration"`
	Size                 string  `json:"size"`
	Rate                 string  `json:"rate"`
	CurrentStage         string  `json:"current_stage"`
	CurrentItem          string  `json:"current_item,omitempty"`
}

// Elapsed returns the running time up to now, or up to FinishedAt once set.
func (s Stats) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	end := now
	if !s.FinishedAt.IsZero() {
		end = s.FinishedAt
	}
	return max(end.Sub(s.StartedAt), 0)
}

// Snapshot computes the derived view of s at now.
//
// CompletionPercentage never exceeds 100 even when Processed overshoots Total; RawRatio keeps the
// unclamped processed/total ratio.
func (s Stats) Snapshot(now time.Time) Snapshot {
	elapsed := s.Elapsed(now)
	unit := s.Unit
	if unit == "" {
		unit = "items"
	}

	snap := Snapshot{
		Total:          s.Total,
		Processed:      s.Processed,
		Errors:         s.Errors,
		Bytes:          s.Bytes,
		ElapsedSeconds: math.Round(elapsed.Seconds()*100) / 100,
		Duration:       shared.FormatDuration(elapsed),
		Size:           shared.FormatBytes(s.Bytes),
		Rate:           shared.FormatRate(s.Processed, elapsed, unit),
		CurrentStage:   s.Stage,
		CurrentItem:    s.CurrentItem,
	}

	if s.Total > 0 {
		ratio := float64(s.Processed) / float64(s.Total)
		snap.RawRatio = math.Round(ratio*10000) / 10000
		snap.CompletionPercentage = math.Min(math.Round(ratio*1000)/10, 100)
		snap.CompletionPercentage = math.Max(snap.CompletionPercentage, 0)
	}

	if s.Completed {
		snap.CompletionPercentage = 100
		snap.CurrentStage = StageCompleted
	}
	if snap.CurrentStage == "" {
		snap.CurrentStage = "Pending"
	}
	return snap
}
