// Package sqlite implements the repository interfaces using SQLite as
// the storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite — no CGo, no C
// toolchain, works everywhere Go works. ":memory:" gives tests a fresh
// throwaway database.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force an immediate connection so a bad path or permission problem
	// surfaces here, not on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets history reads proceed while a result is being recorded.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the connection pool, flushing the WAL.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id              TEXT PRIMARY KEY,
			notebook_id     TEXT NOT NULL,
			cell_id         TEXT NOT NULL,
			sequence_number INTEGER NOT NULL,
			status          TEXT NOT NULL,
			stdout          TEXT NOT NULL DEFAULT '',
			stderr          TEXT NOT NULL DEFAULT '',
			error_kind      TEXT NOT NULL DEFAULT '',
			error_message   TEXT NOT NULL DEFAULT '',
			error_trace     TEXT NOT NULL DEFAULT '',
			execution_count INTEGER NOT NULL DEFAULT 0,
			artifact_count  INTEGER NOT NULL DEFAULT 0,
			duration_ms     INTEGER NOT NULL DEFAULT 0,
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_executions_notebook_id
			ON executions(notebook_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating executions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			execution_id TEXT NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
			idx          INTEGER NOT NULL,
			mime_type    TEXT NOT NULL,
			data         BLOB NOT NULL,
			PRIMARY KEY (execution_id, idx)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating artifacts table: %w", err)
	}

	return nil
}
