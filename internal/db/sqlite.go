// Package db implements the SQLite persistence layer for aj8: player
// accounts and saved state, operator alerts, and schema migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Database is a SQLite file shared by the stores. Writes are serialized;
// reads go straight to the pool.
type Database struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Migration is one schema change. Migrations of a component are applied in
// Version order, each exactly once.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// NewDatabase opens or creates the database at dbPath in WAL mode.
func NewDatabase(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	// One writer at a time; saves from the world queue up behind the mutex.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	const ledger = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			component TEXT NOT NULL,
			version INTEGER NOT NULL,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL,
			PRIMARY KEY (component, version)
		);`
	if _, err := db.Exec(ledger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("database opened")
	return &Database{db: db, path: dbPath}, nil
}

// Migrate applies the migrations of component that have not run yet. Each
// migration runs in its own transaction.
func (d *Database) Migrate(ctx context.Context, component string, migrations []Migration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var current int
	err := d.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE component = ?", component).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read %s schema version: %w", component, err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("%s migration %d (%s) failed: %w", component, m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (component, version, name, applied_at) VALUES (?, ?, ?, ?)",
			component, m.Version, m.Name, time.Now().UTC()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record %s migration %d: %w", component, m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit %s migration %d: %w", component, m.Version, err)
		}
		current = m.Version

		log.Debug().Str("component", component).Int("version", m.Version).Str("name", m.Name).Msg("migration applied")
	}
	return nil
}

// SchemaVersion returns the highest applied migration of component.
func (d *Database) SchemaVersion(ctx context.Context, component string) (int, error) {
	var v int
	err := d.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE component = ?", component).Scan(&v)
	return v, err
}

// Close closes the database.
func (d *Database) Close() error {
	return d.db.Close()
}

// ExecContext runs a write.
func (d *Database) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a read returning rows.
func (d *Database) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row read.
func (d *Database) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

// Path returns the database file path.
func (d *Database) Path() string {
	return d.path
}
