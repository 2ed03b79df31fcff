// Package repositories persists the bounded task history.
//
// Every backend implements [HistoryStore] with the same contract: records are kept most recent first,
// at most [MaxHistory] of them, oldest dropped on overflow. Each mutation goes through a single writer.
//
// Implementations:
//   - [FileStore] : a single JSON array document rewritten wholesale on every mutation (the default)
//   - [SQLiteStore] : the task_records table created by the embedded migrations
//   - [PgStore] : the same table in a shared PostgreSQL database, accessed through a pgx pool
//
// [Open] selects the backend from the [history] config section.
package repositories
