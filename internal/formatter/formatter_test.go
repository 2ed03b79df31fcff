package formatter

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/shared"
	th "github.com/desertthunder/docdash/internal/testing"
)

func sampleRecords() []models.Record {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []models.Record{
		{
			ID:            "t3",
			Kind:          models.KindPDFDownload,
			Status:        models.StatusFailed,
			Error:         "unexpected HTTP status: 404 Not Found",
			ErrorCategory: "not_found",
			Duration:      1.5,
			CreatedAt:     created.Add(2 * time.Minute),
		},
		{
			ID:        "t2",
			Kind:      models.KindWebScraping,
			Status:    models.StatusCancelled,
			Duration:  0.25,
			CreatedAt: created.Add(time.Minute),
		},
		{
			ID:        "t1",
			Kind:      models.KindFileProcessing,
			Status:    models.StatusCompleted,
			Output:    "out/a|b_chunks.json",
			Stats:     &models.Snapshot{Processed: 4, Total: 4, Errors: 1},
			Duration:  65,
			CreatedAt: created,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatJSON},
		{"JSON", FormatJSON},
		{"csv", FormatCSV},
		{"md", FormatMarkdown},
		{"markdown", FormatMarkdown},
		{"text", FormatText},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil || got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}

	if _, err := ParseFormat("xml"); !errors.Is(err, shared.ErrInvalidFlag) {
		t.Errorf("expected ErrInvalidFlag, got %v", err)
	}
	if FormatMarkdown.Extension() != "md" || FormatCSV.Extension() != "csv" {
		t.Error("unexpected extensions")
	}
}

func TestExporters(t *testing.T) {
	records := sampleRecords()

	t.Run("ExportToJSON", func(t *testing.T) {
		data, err := ExportToJSON(records)
		if err != nil {
			t.Fatalf("ExportToJSON failed: %v", err)
		}
		var decoded []models.Record
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(decoded) != 3 || decoded[0].ID != "t3" {
			t.Errorf("unexpected records %+v", decoded)
		}

		empty, _ := ExportToJSON(nil)
		if strings.TrimSpace(string(empty)) != "[]" {
			t.Errorf("expected empty array, got %s", empty)
		}
	})

	t.Run("ExportToCSV", func(t *testing.T) {
		data, err := ExportToCSV(records)
		if err != nil {
			t.Fatalf("ExportToCSV failed: %v", err)
		}

		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(rows) != 4 {
			t.Fatalf("expected header and 3 rows, got %d", len(rows))
		}
		if strings.Join(rows[0], ",") != "ID,Kind,Status,Created,Duration,Processed,Total,Errors,Output,Error,Category" {
			t.Errorf("CSV missing headers, got: %v", rows[0])
		}
		if rows[1][10] != "not_found" {
			t.Errorf("expected category column, got %v", rows[1])
		}
		if rows[3][4] != "65.00" || rows[3][5] != "4" || rows[3][7] != "1" {
			t.Errorf("unexpected completed row %v", rows[3])
		}
		if rows[2][5] != "" {
			t.Errorf("expected empty stats for a record without a snapshot, got %v", rows[2])
		}
	})

	t.Run("ExportToMarkdown", func(t *testing.T) {
		data, err := ExportToMarkdown(records)
		if err != nil {
			t.Fatalf("ExportToMarkdown failed: %v", err)
		}
		output := string(data)

		for _, want := range []string{
			"# Task History",
			"**Records**: 3",
			"**Completed**: 1",
			"**Failed**: 1",
			"| Created | Kind | Status | Duration | Result |",
			"unexpected HTTP status: 404 Not Found (not_found)",
			`out/a\|b_chunks.json`,
			"1m05s",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("Markdown missing %q:\n%s", want, output)
			}
		}

		empty, _ := ExportToMarkdown(nil)
		if !strings.Contains(string(empty), "_No tasks recorded._") {
			t.Errorf("expected empty notice, got %s", empty)
		}
	})

	t.Run("ExportToText", func(t *testing.T) {
		data, err := ExportToText(records)
		if err != nil {
			t.Fatalf("ExportToText failed: %v", err)
		}
		output := string(data)
		if !strings.HasPrefix(output, "Task history: 3 records") {
			t.Errorf("unexpected header: %s", output)
		}
		if !strings.Contains(output, "3. [completed] file_processing t1") {
			t.Errorf("missing completed line: %s", output)
		}
	})
}

func TestWriteExport(t *testing.T) {
	dir := t.TempDir()

	t.Run("writes to path", func(t *testing.T) {
		path := filepath.Join(dir, "nested", "history.csv")
		got, err := WriteExport(sampleRecords(), FormatCSV, path)
		if err != nil {
			t.Fatalf("WriteExport failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
		th.AssertFileExists(t, path)
		if !strings.HasPrefix(th.MustReadFile(t, path), "ID,Kind") {
			t.Error("expected CSV content")
		}
	})

	t.Run("unknown format", func(t *testing.T) {
		if _, err := WriteExport(nil, Format("xml"), filepath.Join(dir, "x.xml")); !errors.Is(err, shared.ErrInvalidFlag) {
			t.Errorf("expected ErrInvalidFlag, got %v", err)
		}
	})
}

func TestTaskTable(t *testing.T) {
	out := TaskTable([]models.TaskView{
		{ID: "abc", Kind: models.KindWebScraping, Status: models.StatusProcessing, Progress: 42, Message: "Downloading"},
	})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", out)
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[1], "42%") {
		t.Errorf("unexpected table %q", out)
	}
}
