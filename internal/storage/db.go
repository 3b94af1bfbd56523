// Package storage provides the sqlite-backed invocation audit store.
//
// The store is optional: the service runs without it, and nothing in the
// request path depends on a write succeeding.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// DB wraps a single-connection sqlite handle.
type DB struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the sqlite database at path and applies
// any pending migrations from migrationsFS. Use ":memory:" for a throwaway
// store.
func Open(ctx context.Context, path string, migrationsFS fs.FS, logger *slog.Logger) (*DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage: empty db path")
	}
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("storage: create db dir: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	// One connection keeps writers serialized and an in-memory db alive.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{db: sqlDB, logger: logger}
	if err := db.init(ctx, path, migrationsFS); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) init(ctx context.Context, path string, migrationsFS fs.FS) error {
	if path != ":memory:" {
		var mode string
		if err := db.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&mode); err != nil {
			return fmt.Errorf("storage: set journal_mode=wal: %w", err)
		}
	}
	if _, err := db.db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		return fmt.Errorf("storage: set busy_timeout: %w", err)
	}
	if migrationsFS != nil {
		if err := db.RunMigrations(ctx, migrationsFS); err != nil {
			return err
		}
	}
	return nil
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// Close releases the database handle.
func (db *DB) Close() error {
	return db.db.Close()
}
