// Package entrystore persists Entry records and the closure table that
// represents filesystem hierarchy (spec.md §4.2, §3 "Entry"), over
// modernc.org/sqlite the way the teacher's internal/db.Store wraps its
// sqlc-style Queries with a WithTx helper — hand-written here since this
// domain has its own schema rather than the teacher's Linear issue cache.
// Open and OpenMemory also apply hlc.Schema against the same connection,
// since the per-peer sync log (spec.md §6 "sync_log") lives in the same
// library.db file as everything else this package owns.
package entrystore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/spacedriveapp/spacedrive-sub011/internal/hlc"
)

// Store wraps the entry-store portion of a library's sqlite database.
type Store struct {
	db      *sql.DB
	queries *Queries
}

// Open opens or creates the sqlite database at dbPath and applies schemaSQL,
// following the teacher's internal/db.Store.Open (WAL mode, foreign keys on,
// directory auto-create).
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create library db directory: %w", err)
		}
	}

	connStr := "file:" + strings.ReplaceAll(dbPath, " ", "%20") + "?_time_format=sqlite"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize entry store schema: %w", err)
	}
	if _, err := db.Exec(hlc.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sync log schema: %w", err)
	}

	return &Store{db: db, queries: &Queries{db: db}}, nil
}

// OpenMemory opens an in-process sqlite database for tests.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open in-memory library db: %w", err)
	}
	db.SetMaxOpenConns(1) // :memory: is single-connection; avoid separate empty DBs
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize entry store schema: %w", err)
	}
	if _, err := db.Exec(hlc.Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sync log schema: %w", err)
	}
	return &Store{db: db, queries: &Queries{db: db}}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Queries returns the store's query surface for read paths that don't need
// a transaction.
func (s *Store) Queries() *Queries { return s.queries }

// DB returns the underlying connection for callers that need raw SQL (e.g.
// the hlc package's peer log, which shares this same connection).
func (s *Store) DB() *sql.DB { return s.db }

// WithTx runs fn against a *Queries bound to a single transaction, matching
// internal/db.Store.WithTx's shape.
func (s *Store) WithTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting Queries run either
// standalone or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries is the entry store's query surface, the hand-written equivalent
// of the sqlc-generated Queries type the teacher's db package wraps.
type Queries struct {
	db dbtx
}
