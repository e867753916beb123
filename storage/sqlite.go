package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/giygas/cycletracker/interfaces"
	"github.com/giygas/cycletracker/ledger"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ interfaces.CycleStore = (*SQLiteStore)(nil)

const cyclesDocument = "cycles"

// SQLiteStore keeps the cycle collection as a JSON blob in a documents table.
// Every save also appends to a bounded revision history.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.Mutex
	path      string
	revisions int
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" keeps it in memory.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "cycles.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path, revisions: 20}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			name TEXT PRIMARY KEY,
			payload BLOB NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS revisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			payload BLOB NOT NULL,
			saved_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Load returns the stored cycles, or an empty list when nothing was saved
func (s *SQLiteStore) Load(ctx context.Context) ([]ledger.Cycle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM documents WHERE name = ?`, cyclesDocument).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []ledger.Cycle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", cyclesDocument, err)
	}
	return decodeCycles(payload)
}

// Save upserts the document and records a revision in one transaction
func (s *SQLiteStore) Save(ctx context.Context, cycles []ledger.Cycle) (retErr error) {
	data, err := encodeCycles(cycles, false)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents(name, payload, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		cyclesDocument, data, now); err != nil {
		return fmt.Errorf("upsert %s: %w", cyclesDocument, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO revisions(name, payload, saved_at) VALUES(?, ?, ?)`,
		cyclesDocument, data, now); err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM revisions WHERE name = ? AND id NOT IN (
			SELECT id FROM revisions WHERE name = ? ORDER BY id DESC LIMIT ?
		)`, cyclesDocument, cyclesDocument, s.revisions); err != nil {
		return fmt.Errorf("prune revisions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Revisions returns how many past versions are kept
func (s *SQLiteStore) Revisions(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revisions WHERE name = ?`, cyclesDocument).Scan(&n); err != nil {
		return 0, fmt.Errorf("count revisions: %w", err)
	}
	return n, nil
}

// DB exposes the underlying sql.DB for tests
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Path returns the configured database path
func (s *SQLiteStore) Path() string { return s.path }

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
