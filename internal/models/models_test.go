package models

import (
	"testing"
	"time"
)

func TestProgress(t *testing.T) {
	tc := []struct {
		name      string
		processed int64
		total     int64
		want      int
	}{
		{"zero total", 5, 0, 0},
		{"negative total", 5, -3, 0},
		{"start", 0, 10, 0},
		{"rounds half up", 1, 8, 13},
		{"exact", 10, 10, 100},
		{"overshoot clamps", 25, 10, 100},
		{"negative processed clamps", -4, 10, 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(tt.processed, tt.total); got != tt.want {
				t.Errorf("Progress(%d, %d) = %d, want %d", tt.processed, tt.total, got, tt.want)
			}
		})
	}

	t.Run("bounded for all inputs", func(t *testing.T) {
		for total := int64(1); total <= 50; total++ {
			for processed := int64(0); processed <= 120; processed++ {
				p := Progress(processed, total)
				if p < 0 || p > 100 {
					t.Fatalf("Progress(%d, %d) = %d out of range", processed, total, p)
				}
				if processed >= total && p != 100 {
					t.Fatalf("Progress(%d, %d) = %d, want 100", processed, total, p)
				}
			}
		}
	})
}

func TestStatusTransitions(t *testing.T) {
	tc := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusProcessing, true},
		{StatusQueued, StatusCancelled, true},
		{StatusQueued, StatusFailed, true},
		{StatusQueued, StatusCompleted, false},
		{StatusProcessing, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusQueued, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusProcessing, false},
		{StatusFailed, StatusFailed, false},
	}

	for _, tt := range tc {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("cancelled"); err != nil || s != StatusCancelled {
		t.Errorf("ParseStatus(cancelled) = %v, %v", s, err)
	}
	if _, err := ParseStatus("paused"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestStatsSnapshot(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("in progress", func(t *testing.T) {
		s := Stats{Total: 4, Processed: 1, Bytes: 2048, Unit: "files", Stage: "Processing", StartedAt: start}
		snap := s.Snapshot(start.Add(2 * time.Second))

		if snap.CompletionPercentage != 25 {
			t.Errorf("expected 25%%, got %v", snap.CompletionPercentage)
		}
		if snap.RawRatio != 0.25 {
			t.Errorf("expected raw ratio 0.25, got %v", snap.RawRatio)
		}
		if snap.Size != "2.0 KB" {
			t.Errorf("expected 2.0 KB, got %s", snap.Size)
		}
		if snap.Rate != "0.5 files/s" {
			t.Errorf("expected 0.5 files/s, got %s", snap.Rate)
		}
		if snap.Duration != "2.0s" {
			t.Errorf("expected 2.0s, got %s", snap.Duration)
		}
		if snap.CurrentStage != "Processing" {
			t.Errorf("expected Processing, got %s", snap.CurrentStage)
		}
	})

	t.Run("overshoot clamps percentage but not ratio", func(t *testing.T) {
		s := Stats{Total: 10, Processed: 15, StartedAt: start}
		snap := s.Snapshot(start.Add(time.Second))

		if snap.CompletionPercentage != 100 {
			t.Errorf("expected 100%%, got %v", snap.CompletionPercentage)
		}
		if snap.RawRatio != 1.5 {
			t.Errorf("expected raw ratio 1.5, got %v", snap.RawRatio)
		}
	})

	t.Run("recomputed on every call", func(t *testing.T) {
		s := Stats{Total: 10, Processed: 5, StartedAt: start}
		first := s.Snapshot(start.Add(time.Second))
		second := s.Snapshot(start.Add(5 * time.Second))
		if first.ElapsedSeconds == second.ElapsedSeconds {
			t.Error("elapsed should track the snapshot time")
		}
	})

	t.Run("completed", func(t *testing.T) {
		s := Stats{Total: 10, Processed: 10, StartedAt: start, FinishedAt: start.Add(3 * time.Second), Completed: true}
		snap := s.Snapshot(start.Add(time.Hour))

		if snap.CompletionPercentage != 100.0 {
			t.Errorf("expected 100.0, got %v", snap.CompletionPercentage)
		}
		if snap.CurrentStage != StageCompleted {
			t.Errorf("expected %s, got %s", StageCompleted, snap.CurrentStage)
		}
		if snap.ElapsedSeconds != 3 {
			t.Errorf("elapsed should stop at FinishedAt, got %v", snap.ElapsedSeconds)
		}
	})

	t.Run("zero value", func(t *testing.T) {
		snap := Stats{}.Snapshot(start)
		if snap.CompletionPercentage != 0 || snap.CurrentStage != "Pending" {
			t.Errorf("unexpected zero snapshot %+v", snap)
		}
	})
}

func TestRecord(t *testing.T) {
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("ApplyTerminal completed", func(t *testing.T) {
		r := NewRecord("t1", KindPDFDownload, nil, created)
		r.ApplyTerminal(StatusCompleted, TerminalUpdate{Output: "/out", Error: "ignored", At: created.Add(90 * time.Second)})

		if r.Status != StatusCompleted || r.Output != "/out" || r.Error != "" {
			t.Errorf("unexpected record %+v", r)
		}
		if r.CompletedAt == nil || r.FailedAt != nil {
			t.Error("expected only CompletedAt to be set")
		}
		if r.Duration != 90 {
			t.Errorf("expected 90s duration, got %v", r.Duration)
		}
		if err := r.Validate(); err != nil {
			t.Errorf("unexpected validation error: %v", err)
		}
	})

	t.Run("ApplyTerminal failed drops output", func(t *testing.T) {
		r := NewRecord("t2", KindWebScraping, nil, created)
		r.ApplyTerminal(StatusFailed, TerminalUpdate{Output: "/partial", Error: "boom", ErrorCategory: "network", At: created})

		if r.Output != "" {
			t.Errorf("failed record must not carry output, got %q", r.Output)
		}
		if r.Error != "boom" || r.ErrorCategory != "network" || r.FailedAt == nil {
			t.Errorf("unexpected record %+v", r)
		}
	})

	t.Run("ApplyTerminal cancelled", func(t *testing.T) {
		r := NewRecord("t3", KindFileProcessing, nil, created)
		r.ApplyTerminal(StatusCancelled, TerminalUpdate{At: created.Add(time.Second)})
		if r.CancelledAt == nil || r.Status != StatusCancelled {
			t.Errorf("unexpected record %+v", r)
		}
	})

	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name string
			r    Record
		}{
			{"missing id", Record{Kind: KindPDFDownload, Status: StatusQueued}},
			{"missing kind", Record{ID: "x", Status: StatusQueued}},
			{"bad status", Record{ID: "x", Kind: KindPDFDownload, Status: "paused"}},
			{"output on queued", Record{ID: "x", Kind: KindPDFDownload, Status: StatusQueued, Output: "/out"}},
		}
		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				if err := tt.r.Validate(); err == nil {
					t.Error("expected validation error")
				}
			})
		}
	})
}
