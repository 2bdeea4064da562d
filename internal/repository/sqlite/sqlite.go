// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the Go binary as a single file.
// No separate database server to install or manage. It is the default store
// for development, single-node deployments and tests (":memory:").
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which means a C toolchain and painful
// cross-compilation. modernc.org/sqlite is a pure Go translation of SQLite.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB     : a connection pool (NOT a single connection!)
//   - sql.Row    : a single result row
//
// The pattern is always:
//  1. sql.Open(driverName, dataSourceName) → creates a pool
//  2. db.QueryRowContext / db.ExecContext  → runs queries
//  3. row.Scan(&field1, &field2)           → reads results into Go variables
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Importing modernc.org/sqlite registers the "sqlite" driver with
	// database/sql at init time. We also need its typed error and the
	// result codes from lib, so it is a named import rather than a blank one.
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// MemoryPath opens a private in-memory database. Used by tests and by the
// default development configuration.
const MemoryPath = ":memory:"

// DB wraps a sql.DB connection pool and provides repository methods.
// It implements repository.UserRepository (see user.go).
type DB struct {
	conn *sql.DB
}

// filePragmas are applied by the driver to every connection it opens.
//
// WHY IN THE DSN?
// PRAGMAs are per connection, and sql.DB opens connections whenever it likes.
// A `conn.Exec("PRAGMA busy_timeout=...")` would reach only whichever pooled
// connection happened to run it; every other one would fail instantly with
// SQLITE_BUSY while another writer holds the lock.
const filePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/secrets.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (lost on close)
//
// FILE DATABASES:
// WAL lets readers run while a write is in progress, and busy_timeout makes
// a writer wait up to 5s for the write lock instead of failing. Concurrent
// INSERTs therefore queue up and the UNIQUE constraint decides the race.
//
// IN-MEMORY POOLS:
// Every new connection to ":memory:" gets its OWN empty database. A pool that
// opens a second connection under concurrent load would suddenly see no
// tables at all. We pin in-memory pools to a single connection so every
// caller shares the same database (and nobody ever waits on a lock).
func New(dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != MemoryPath {
		dsn = dbPath + "?" + filePragmas
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if dbPath == MemoryPath {
		conn.SetMaxOpenConns(1)
	}

	// Ping verifies the connection actually works.
	// Without this, a bad path or permissions issue would only surface
	// on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS is idempotent, and
// later columns are added through addColumnIfNotExists so older database
// files upgrade in place.
//
// email is UNIQUE: this constraint is the single serialization point for
// "one account per email". Concurrent registrations race on it and exactly
// one INSERT wins.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT NOT NULL UNIQUE,
			credential TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// secret is nullable: NULL means "never submitted".
	if err := db.addColumnIfNotExists("users", "secret", "TEXT"); err != nil {
		return fmt.Errorf("adding secret to users: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent: safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err is SQLite rejecting a row because of
// a UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
