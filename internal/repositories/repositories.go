package repositories

import (
	"context"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/docdash/internal/models"
	"github.com/desertthunder/docdash/internal/shared"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxHistory is the default number of records a store keeps.
const MaxHistory = 100

// checkRecord rejects records that would violate the history invariants before they are written.
func checkRecord(rec models.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// HistoryStore is the durable task log.
type HistoryStore interface {
	// Append adds rec at the front, truncating to the most recent records.
	Append(ctx context.Context, rec models.Record) error
	// MarkTerminal updates the record for id in place. A missing record is logged and ignored.
	MarkTerminal(ctx context.Context, id string, status models.Status, u models.TerminalUpdate) error
	// Load returns every record, most recent first.
	Load(ctx context.Context) ([]models.Record, error)
	// List returns up to limit records of kind (all kinds when empty). A limit <= 0 means no limit.
	List(ctx context.Context, kind models.Kind, limit int) ([]models.Record, error)
	// Clear removes every record.
	Clear(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.History.Backend.
func Open(ctx context.Context, cfg *shared.Config, logger *log.Logger) (HistoryStore, error) {
	maxEntries := cfg.History.MaxEntries
	if maxEntries <= 0 {
		maxEntries = MaxHistory
	}
	logger = logger.With("component", "history", "backend", cfg.History.Backend)

	switch cfg.History.Backend {
	case "", "file":
		return NewFileStore(cfg.History.Path, maxEntries, logger), nil
	case "sqlite":
		db, err := shared.NewDatabase(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewSQLiteStore(db, maxEntries, logger), nil
	case "postgres":
		if cfg.Database.PostgresURL == "" {
			return nil, fmt.Errorf("%w: database.postgres_url is required for the postgres backend", shared.ErrMissingConfig)
		}
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := NewPgStore(pool, maxEntries, logger)
		if err := store.EnsureTable(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create task_records table: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: unknown history backend %q", shared.ErrInvalidConfig, cfg.History.Backend)
}

// filterRecords applies the kind filter and limit used by List to an ordered slice.
func filterRecords(records []models.Record, kind models.Kind, limit int) []models.Record {
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		if kind != "" && r.Kind != kind {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// sortNewestFirst orders records by creation time, newest first, keeping insertion order for ties.
func sortNewestFirst(records []models.Record) {
	slices.SortStableFunc(records, func(a, b models.Record) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
