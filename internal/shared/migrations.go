package shared

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Migration is one versioned schema change with its up and down SQL.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// Migrator applies versioned migrations read from a filesystem to a SQLite database.
//
// Files are named "NNNN_description_up.sql" / "NNNN_description_down.sql" and applied in version order.
// Applied versions are tracked in the schema_migrations table.
type Migrator struct {
	db  *sql.DB
	src fs.FS
	dir string
}

// NewMigrator returns a Migrator over the migrations embedded in the binary.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db, src: embeddedMigrations, dir: "sql"}
}

// NewMigratorFS returns a Migrator reading migrations from dir within src.
func NewMigratorFS(db *sql.DB, src fs.FS, dir string) *Migrator {
	return &Migrator{db: db, src: src, dir: dir}
}

// Load reads and pairs the migration files, sorted by version.
func (m *Migrator) Load() ([]Migration, error) {
	entries, err := fs.ReadDir(m.src, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(m.src, path.Join(m.dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		mig, ok := byVersion[version]
		if !ok {
			mig = &Migration{Version: version}
			byVersion[version] = mig
		}

		switch {
		case strings.HasSuffix(rest, "_up.sql"):
			mig.Up = string(content)
			mig.Name = strings.TrimSuffix(rest, "_up.sql")
		case strings.HasSuffix(rest, "_down.sql"):
			mig.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.Up == "" || mig.Down == "" {
			return nil, fmt.Errorf("%w: incomplete migration for version %d", ErrInvalidConfig, mig.Version)
		}
		migrations = append(migrations, *mig)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}

// Up applies every migration that has not been recorded yet and returns how many ran.
func (m *Migrator) Up() (int, error) {
	migrations, err := m.Load()
	if err != nil {
		return 0, err
	}
	if err := m.ensureTable(); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.Applied()
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range migrations {
		if slices.Contains(applied, mig.Version) {
			continue
		}
		if err := m.exec(mig.Up, "INSERT INTO schema_migrations (version) VALUES (?)", mig.Version); err != nil {
			return ran, fmt.Errorf("failed to apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		ran++
	}
	return ran, nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down() error {
	migrations, err := m.Load()
	if err != nil {
		return err
	}
	if err := m.ensureTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := m.Applied()
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	current := applied[len(applied)-1]
	idx := slices.IndexFunc(migrations, func(mig Migration) bool { return mig.Version == current })
	if idx < 0 {
		return fmt.Errorf("migration version %d not found", current)
	}

	mig := migrations[idx]
	if err := m.exec(mig.Down, "DELETE FROM schema_migrations WHERE version = ?", mig.Version); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", mig.Version, err)
	}
	return nil
}

// Applied returns the recorded migration versions in ascending order.
func (m *Migrator) Applied() ([]int, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (m *Migrator) ensureTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// exec runs script statement by statement and then the bookkeeping query in one transaction.
func (m *Migrator) exec(script, bookkeeping string, version int) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(script) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, stmt)
		}
	}
	if _, err := tx.Exec(bookkeeping, version); err != nil {
		return err
	}
	return tx.Commit()
}

// splitStatements strips line comments and splits a script on semicolons.
func splitStatements(script string) []string {
	var b strings.Builder
	for line := range strings.SplitSeq(script, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		if line = strings.TrimSpace(line); line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	var out []string
	for stmt := range strings.SplitSeq(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// RunMigrations applies all embedded migrations to db.
func RunMigrations(db *sql.DB) error {
	_, err := NewMigrator(db).Up()
	return err
}
