package storage

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database. Used by tests.
const MemoryPath = ":memory:"

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures required tables exist. The path must be on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
		if err := CheckPath(path); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == MemoryPath {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// connPragmas run on every new pooled connection. journal_mode is persistent
// in the file; busy_timeout and foreign_keys are per connection.
var connPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
}

// DSN builds the driver connection string for path. Write transactions take
// the RESERVED lock at BEGIN so a read-then-write never has to upgrade.
func DSN(path string) string {
	q := url.Values{}
	for _, p := range connPragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")
	if path == MemoryPath {
		return "file::memory:?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
  token           TEXT PRIMARY KEY,
  id              TEXT NOT NULL UNIQUE,
  phone_number    TEXT NOT NULL,
  message_id      TEXT NOT NULL,
  message         JSON,
  status          TEXT NOT NULL,
  booking_data    JSON NOT NULL DEFAULT '{}',
  trip_preference TEXT,
  preferred_date  TEXT,
  preferred_time  TEXT,
  created_at      TEXT NOT NULL,
  updated_at      TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS seen_messages (
  message_id  TEXT PRIMARY KEY,
  received_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS conversations_phone_created_at_idx ON conversations(phone_number, created_at);`,
		`CREATE INDEX IF NOT EXISTS seen_messages_received_at_idx ON seen_messages(received_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
