package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore keeps the history in a PostgreSQL task_records table.
type PgStore struct {
	mu     sync.Mutex
	pool   *pgxpool.Pool
	max    int
	logger *log.Logger
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool, maxEntries int, logger *log.Logger) *PgStore {
	if maxEntries <= 0 {
		maxEntries = MaxHistory
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PgStore{pool: pool, max: maxEntries, logger: logger}
}

// EnsureTable creates the task_records table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_records (
			id               TEXT PRIMARY KEY,
			kind             TEXT NOT NULL,
			status           TEXT NOT NULL,
			input            JSONB,
			output           TEXT,
			error            TEXT,
			error_category   TEXT,
			stats            JSONB,
			duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at       TIMESTAMPTZ NOT NULL,
			completed_at     TIMESTAMPTZ,
			failed_at        TIMESTAMPTZ,
			cancelled_at     TIMESTAMPTZ
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_task_records_created_at ON task_records(created_at DESC)`)
	return err
}

func (s *PgStore) Append(ctx context.Context, rec models.Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO task_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			kind = EXCLUDED.kind, status = EXCLUDED.status, input = EXCLUDED.input, output = EXCLUDED.output,
			error = EXCLUDED.error, error_category = EXCLUDED.error_category, stats = EXCLUDED.stats,
			duration_seconds = EXCLUDED.duration_seconds, created_at = EXCLUDED.created_at,
			completed_at = EXCLUDED.completed_at, failed_at = EXCLUDED.failed_at, cancelled_at = EXCLUDED.cancelled_at`,
		row.args()...)
	if err != nil {
		return fmt.Errorf("insert task record: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM task_records WHERE id NOT IN (
		SELECT id FROM task_records ORDER BY created_at DESC LIMIT $1)`, s.max)
	if err != nil {
		return fmt.Errorf("truncate task records: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PgStore) MarkTerminal(ctx context.Context, id string, status models.Status, u models.TerminalUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := scanRecord(s.pool.QueryRow(ctx, `SELECT `+recordColumns+` FROM task_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
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

	_, err = s.pool.Exec(ctx, `
		UPDATE task_records
		SET status = $1, output = $2, error = $3, error_category = $4, stats = $5::jsonb,
			duration_seconds = $6, completed_at = $7, failed_at = $8, cancelled_at = $9
		WHERE id = $10`,
		row.status, row.output, row.err, row.category, row.stats, row.duration,
		row.completedAt, row.failedAt, row.cancelledAt, row.id)
	if err != nil {
		return fmt.Errorf("update task record %s: %w", id, err)
	}
	return nil
}

func (s *PgStore) Load(ctx context.Context) ([]models.Record, error) {
	return s.List(ctx, "", 0)
}

func (s *PgStore) List(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM task_records`
	args := []any{}

	if kind != "" {
		args = append(args, string(kind))
		query += fmt.Sprintf(" WHERE kind = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list task records: %w", err)
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
	return records, rows.Err()
}

func (s *PgStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.pool.Exec(ctx, "DELETE FROM task_records"); err != nil {
		return fmt.Errorf("clear task records: %w", err)
	}
	return nil
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
