// Package db stores render history in SQLite: schema migrations embedded in
// the binary, a repository over the render_history table, an async writer
// that keeps inserts off the render path and retention cleanup.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrClosed is returned by operations on a closed Database.
var ErrClosed = errors.New("database connection is closed")

// Database owns the SQLite connection for render history.
//
// This organism composes:
//   - NewSQLiteConnection for the WAL connection
//   - MigrateUp for the embedded schema
//
// Usage:
//
//	database, err := db.Open(ctx, cfg.HistoryDBPath())
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//	repo := db.NewRepository(database)
type Database struct {
	mu   sync.RWMutex
	conn *sql.DB
	path string
}

// Open creates the parent directory, migrates the schema and connects.
func Open(ctx context.Context, path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// Step 1: Schema, on a connection golang-migrate may close
	if err := MigrateUp(ctx, path); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	// Step 2: The long-lived connection
	conn, err := NewSQLiteConnection(ctx, DefaultConnectionConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	return &Database{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}

// Ping checks the connection for health reporting.
func (d *Database) Ping(ctx context.Context) error {
	conn, err := d.db()
	if err != nil {
		return err
	}
	return conn.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (d *Database) Stats() sql.DBStats {
	conn, err := d.db()
	if err != nil {
		return sql.DBStats{}
	}
	return conn.Stats()
}

// Close closes the connection. Later calls are no-ops.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func (d *Database) db() (*sql.DB, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.conn == nil {
		return nil, ErrClosed
	}
	return d.conn, nil
}
