// package formatter renders task history and live task lists as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/shared"
)

// Format is an export format name.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	if f == FormatMarkdown {
		return "md"
	}
	return string(f)
}

// ParseFormat accepts a format name or one of its common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w: unknown format %q (json, csv, markdown, txt)", shared.ErrInvalidFlag, s)
}

// Export renders records in format f.
func Export(records []models.Record, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		return ExportToJSON(records)
	case FormatCSV:
		return ExportToCSV(records)
	case FormatMarkdown:
		return ExportToMarkdown(records)
	case FormatText:
		return ExportToText(records)
	}
	return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, f)
}

// ExportToJSON renders records as an indented JSON array.
func ExportToJSON(records []models.Record) ([]byte, error) {
	if records == nil {
		records = []models.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode records: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV converts records to CSV with columns: ID, Kind, Status, Created, Duration, Processed, Total,
// Errors, Output, Error, Category
func ExportToCSV(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Kind", "Status", "Created", "Duration", "Processed", "Total", "Errors", "Output", "Error", "Category"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		var processed, total, errs string
		if rec.Stats != nil {
			processed = strconv.FormatInt(rec.Stats.Processed, 10)
			total = strconv.FormatInt(rec.Stats.Total, 10)
			errs = strconv.FormatInt(rec.Stats.Errors, 10)
		}
		row := []string{
			rec.ID,
			string(rec.Kind),
			string(rec.Status),
			rec.CreatedAt.UTC().Format(time.RFC3339),
			strconv.FormatFloat(rec.Duration, 'f', 2, 64),
			processed,
			total,
			errs,
			rec.Output,
			rec.Error,
			rec.ErrorCategory,
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders records as a summary followed by a table.
func ExportToMarkdown(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Task History\n\n")
	buf.WriteString(fmt.Sprintf("**Records**: %d\n", len(records)))

	counts := countStatuses(records)
	for _, s := range []models.Status{models.StatusCompleted, models.StatusFailed, models.StatusCancelled} {
		if counts[s] > 0 {
			buf.WriteString(fmt.Sprintf("**%s**: %d\n", capitalize(string(s)), counts[s]))
		}
	}
	buf.WriteString("\n")

	if len(records) == 0 {
		buf.WriteString("_No tasks recorded._\n")
		return buf.Bytes(), nil
	}

	buf.WriteString("| Created | Kind | Status | Duration | Result |\n")
	buf.WriteString("|---|---|---|---|---|\n")
	for _, rec := range records {
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			rec.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			rec.Kind,
			rec.Status,
			shared.FormatDuration(time.Duration(rec.Duration*float64(time.Second))),
			escapeCell(result(rec)),
		))
	}

	return buf.Bytes(), nil
}

// ExportToText renders records one per line.
func ExportToText(records []models.Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Task history: %d records\n\n", len(records)))
	for i, rec := range records {
		buf.WriteString(fmt.Sprintf("%d. [%s] %s %s %s\n", i+1, rec.Status, rec.Kind, rec.ID, result(rec)))
	}

	return buf.Bytes(), nil
}

// WriteExport renders records and writes them to path.
//
// Defaults to task_history_{epoch}.{ext} in the working directory.
func WriteExport(records []models.Record, f Format, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("task_history_%d.%s", time.Now().Unix(), f.Extension())
	}

	data, err := Export(records, f)
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}
	return path, nil
}

// TaskTable renders live task views as an aligned text table.
func TaskTable(views []models.TaskView) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tPROGRESS\tMESSAGE")
	for _, v := range views {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", v.ID, v.Kind, v.Status, v.Progress, v.Message)
	}
	w.Flush()
	return buf.String()
}

func result(rec models.Record) string {
	switch rec.Status {
	case models.StatusCompleted:
		return rec.Output
	case models.StatusFailed:
		if rec.ErrorCategory != "" {
			return fmt.Sprintf("%s (%s)", rec.Error, rec.ErrorCategory)
		}
		return rec.Error
	}
	return ""
}

func countStatuses(records []models.Record) map[models.Status]int {
	counts := make(map[models.Status]int)
	for _, rec := range records {
		counts[rec.Status]++
	}
	return counts
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}
