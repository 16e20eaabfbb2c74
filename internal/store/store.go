package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migrations upgrade a runs database one user_version at a time. Entry i
// moves version i to version i+1.
var migrations = []string{
	// 1: list runs in creation order without a table scan.
	`CREATE INDEX IF NOT EXISTS idx_runs_solved_at ON runs(solved_at, id)`,
}

// Store keeps solved runs in one SQLite file, a row per run holding the
// canonical snapshot and the columns needed to list and look up runs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for store writes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open opens the runs database at path, creating the file and the runs
// table when missing and upgrading older databases. Opening an up-to-date
// database changes nothing.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	// Runs are saved one at a time; a single connection also keeps the
	// per-connection pragmas below in effect.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := setup(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func setup(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("run database %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("create runs table: %w", err)
	}
	return migrate(db)
}

// migrate applies the migrations past the stored user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for v := version; v < len(migrations); v++ {
		if _, err := db.Exec(migrations[v]); err != nil {
			return fmt.Errorf("migrate runs database to version %d: %w", v+1, err)
		}
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// Close releases the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection, for inspection tools and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// pragma reads the current value of a pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
