package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
)

const recordColumns = `id, kind, status, input, output, error, error_category, stats, duration_seconds,
	created_at, completed_at, failed_at, cancelled_at`

// SQLiteStore keeps the history in the task_records table.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	max    int
	logger *log.Logger
}

// NewSQLiteStore creates a SQLiteStore over a migrated database.
func NewSQLiteStore(db *sql.DB, maxEntries int, logger *log.Logger) *SQLiteStore {
	if maxEntries <= 0 {
		maxEntries = MaxHistory
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SQLiteStore{db: db, max: maxEntries, logger: logger}
}

func (s *SQLiteStore) Append(ctx context.Context, rec models.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO task_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, row.args()...)
	if err != nil {
		return fmt.Errorf("failed to insert task record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM task_records WHERE id NOT IN (
		SELECT id FROM task_records ORDER BY created_at DESC, rowid DESC LIMIT ?)`, s.max)
	if err != nil {
		return fmt.Errorf("failed to truncate task records: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) MarkTerminal(ctx context.Context, id string, status models.Status, u models.TerminalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := scanRecord(s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM task_records WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warn("history record not found", "task_id", id, "status", status)
		return nil
	}
	if err != nil {
		return err
	}

	rec.ApplyTerminal(status, u)
	row, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE task_records
		SET status = ?, output = ?, error = ?, error_category = ?, stats = ?, duration_seconds = ?,
			completed_at = ?, failed_at = ?, cancelled_at = ?
		WHERE id = ?`,
		row.status, row.output, row.err, row.category, row.stats, row.duration,
		row.completedAt, row.failedAt, row.cancelledAt, row.id)
	if err != nil {
		return fmt.Errorf("failed to update task record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]models.Record, error) {
	return s.List(ctx, "", 0)
}

func (s *SQLiteStore) List(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM task_records`
	args := []any{}

	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query task records: %w", err)
	}
	defer rows.Close()

	records := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM task_records"); err != nil {
		return fmt.Errorf("failed to clear task records: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// recordRow is the column encoding of a [models.Record] shared by the SQL backends.
type recordRow struct {
	id, kind, status                   string
	input, stats                       *string
	output, err, category              string
	duration                           float64
	createdAt                          time.Time
	completedAt, failedAt, cancelledAt *time.Time
}

func (r recordRow) args() []any {
	return []any{
		r.id, r.kind, r.status, r.input, r.output, r.err, r.category, r.stats, r.duration,
		r.createdAt, r.completedAt, r.failedAt, r.cancelledAt,
	}
}

func encodeRecord(rec models.Record) (recordRow, error) {
	row := recordRow{
		id:          rec.ID,
		kind:        string(rec.Kind),
		status:      string(rec.Status),
		output:      rec.Output,
		err:         rec.Error,
		category:    rec.ErrorCategory,
		duration:    rec.Duration,
		createdAt:   rec.CreatedAt.UTC(),
		completedAt: utc(rec.CompletedAt),
		failedAt:    utc(rec.FailedAt),
		cancelledAt: utc(rec.CancelledAt),
	}
	if len(rec.Input) > 0 {
		in := string(rec.Input)
		row.input = &in
	}
	if rec.Stats != nil {
		data, err := json.Marshal(rec.Stats)
		if err != nil {
			return row, fmt.Errorf("failed to encode stats: %w", err)
		}
		st := string(data)
		row.stats = &st
	}
	return row, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one task_records row. It is shared by database/sql and pgx rows.
func scanRecord(sc scanner) (models.Record, error) {
	var (
		rec                                models.Record
		kind, status                       string
		input, stats                       []byte
		output, errMsg, category           *string
		completedAt, failedAt, cancelledAt *time.Time
	)

	err := sc.Scan(&rec.ID, &kind, &status, &input, &output, &errMsg, &category, &stats, &rec.Duration,
		&rec.CreatedAt, &completedAt, &failedAt, &cancelledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan task record: %w", err)
	}

	rec.Kind = models.Kind(kind)
	rec.Status = models.Status(status)
	rec.Output = deref(output)
	rec.Error = deref(errMsg)
	rec.ErrorCategory = deref(category)
	rec.CompletedAt, rec.FailedAt, rec.CancelledAt = completedAt, failedAt, cancelledAt
	if len(input) > 0 {
		rec.Input = json.RawMessage(input)
	}
	if len(stats) > 0 {
		var snap models.Snapshot
		if err := json.Unmarshal(stats, &snap); err != nil {
			return rec, fmt.Errorf("failed to decode stats for %s: %w", rec.ID, err)
		}
		rec.Stats = &snap
	}
	return rec, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
