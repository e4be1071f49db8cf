// Package store opens and migrates the SQLite connection pool owned by a
// single worker (internal/worker). It is the daemon's only point of
// contact with the embedded engine.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// BusyTimeout is the engine's own lock-wait timeout, handling contention
// between a worker's writer and the WAL auto-checkpointer or backup
// tooling. It does not bound request latency from the client's
// perspective; a worker processes one command at a time regardless.
const BusyTimeout = 5 * time.Second

// WALAutocheckpointPages is the number of WAL pages after which SQLite
// opportunistically checkpoints into the main database file.
const WALAutocheckpointPages = 1000

// Open opens (creating if missing) the SQLite database at path and
// configures it the way a long-lived, single-writer worker needs:
// write-ahead logging, NORMAL synchronous durability, a busy timeout, and
// an auto-checkpoint threshold. Use ":memory:" for an in-memory database
// in tests.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_busy_timeout=%d", path, BusyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// A SQLite connection pool for one file must never hand out more than
	// one writer; the worker already serializes commands, but this keeps
	// the invariant true even if that changes later.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", BusyTimeout.Milliseconds()),
		fmt.Sprintf("PRAGMA wal_autocheckpoint=%d", WALAutocheckpointPages),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	return db, nil
}

// Migrate creates the daemon's single owned table, meta(rev, ts), if
// absent, and seeds it with the (rev=0, ts=now) row if it is empty. This
// is deliberately hand-rolled rather than run through a migration
// framework: the daemon owns exactly one table, and a framework's own
// version-tracking table would violate that invariant (see DESIGN.md).
func Migrate(db *sql.DB) error {
	const createMeta = `CREATE TABLE IF NOT EXISTS meta (rev INTEGER PRIMARY KEY, ts INTEGER)`
	if _, err := db.Exec(createMeta); err != nil {
		return fmt.Errorf("store: create meta table: %w", err)
	}

	var count int
	if err := db.QueryRow(`SELECT count(*) FROM meta`).Scan(&count); err != nil {
		return fmt.Errorf("store: count meta rows: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO meta (rev, ts) VALUES (0, ?)`, time.Now().Unix()); err != nil {
			return fmt.Errorf("store: seed meta row: %w", err)
		}
	}

	return nil
}

// CurrentRevision reads the current rev column from the meta table.
func CurrentRevision(db *sql.DB) (int64, error) {
	var rev int64
	if err := db.QueryRow(`SELECT rev FROM meta`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("store: read revision: %w", err)
	}
	return rev, nil
}

// CheckpointTruncate runs a full WAL checkpoint, truncating the -wal
// sidecar back into the main file. Callers that need this best-effort
// (e.g. CloseDatabase, which must proceed to close the pool regardless)
// should log rather than propagate a failure.
func CheckpointTruncate(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("store: checkpoint: %w", err)
	}
	return nil
}
