// Package db provides the SQLite cache database for BulkVS records.
//
// The database is the durable store behind the sync engine: interactive
// read paths query it instead of the rate-limited BulkVS API, and the
// reconciler refreshes it from full provider snapshots.
//
// The database runs embedded with WAL mode so web workers can read
// concurrently while a reconciliation writes.
//
// Tables:
//   - numbers_cache: telephone number inventory, keyed by TN
//   - e911_cache:    emergency address records, keyed by TN
//   - sync_status:   one row per resource type (lease + counters)
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite connection with cache-specific functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it is created; call InitSchema before
// first use. The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// Enable WAL mode for concurrent reads
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to 5 seconds
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS numbers_cache (
		tn TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT '',
		activation_date TEXT NOT NULL DEFAULT '',
		rate_center TEXT NOT NULL DEFAULT '',
		tier TEXT NOT NULL DEFAULT '',
		lidb TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		sms INTEGER NOT NULL DEFAULT 0,
		mms INTEGER NOT NULL DEFAULT 0,
		portout_pin TEXT NOT NULL DEFAULT '',
		trunk_group TEXT NOT NULL DEFAULT '',
		raw_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS e911_cache (
		tn TEXT PRIMARY KEY,
		caller_name TEXT NOT NULL DEFAULT '',
		address_line1 TEXT NOT NULL DEFAULT '',
		address_line2 TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		zip TEXT NOT NULL DEFAULT '',
		address_id TEXT NOT NULL DEFAULT '',
		sms_json TEXT NOT NULL DEFAULT '[]',
		raw_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One row per resource type, created lazily on first acquisition.
	-- Lease timestamps are unix milliseconds so staleness comparisons
	-- can run inside the compare-and-set UPDATE.
	CREATE TABLE IF NOT EXISTS sync_status (
		resource_type TEXT PRIMARY KEY,
		state TEXT NOT NULL DEFAULT 'idle',
		lease_token TEXT NOT NULL DEFAULT '',
		lease_started_at INTEGER NOT NULL DEFAULT 0,
		lease_ended_at INTEGER NOT NULL DEFAULT 0,
		acknowledged_count INTEGER NOT NULL DEFAULT 0,
		observed_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_numbers_trunk_group ON numbers_cache(trunk_group);
	CREATE INDEX IF NOT EXISTS idx_numbers_status ON numbers_cache(status);
	CREATE INDEX IF NOT EXISTS idx_e911_state ON e911_cache(state);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// formatTime serializes a timestamp for storage.
// RFC3339Nano keeps upsert-twice distinguishable in updated_at.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserializes a stored timestamp; zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
