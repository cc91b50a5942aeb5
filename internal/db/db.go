// Package db provides the SQLite connection and schema for fujitsud.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Climate ledger - append-only history of commands, device errors and availability changes.
	// request_id is the command UUID; one row per (request_id, event_type).
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS climate_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			payload TEXT,
			source TEXT,
			request_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_climate_ledger_type_ts ON climate_ledger(event_type, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("failed to create climate_ledger table: %w", err)
	}

	_, err = db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_climate_ledger_request
		ON climate_ledger(request_id, event_type)
		WHERE request_id IS NOT NULL AND request_id != '';
	`)
	if err != nil {
		return fmt.Errorf("failed to create idx_climate_ledger_request index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
