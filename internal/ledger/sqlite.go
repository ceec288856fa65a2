package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed ledger. Every logical operation runs in its own
// immediate transaction; writers serialize on the database write lock with a
// bounded busy timeout instead of application-level locking.
type Store struct {
	db       *sql.DB
	path     string
	log      *slog.Logger
	maxScore int
}

// Options tune an opened store. Zero values fall back to defaults.
type Options struct {
	// Logger receives operational logging; nil discards it.
	Logger *slog.Logger
	// MaxScore caps accepted submission scores (default DefaultMaxScore).
	MaxScore int
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (o Options) maxScore() int {
	if o.MaxScore > 0 {
		return o.MaxScore
	}
	return DefaultMaxScore
}

func writeDSN(path string) string {
	return path + "?_txlock=immediate" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=synchronous(NORMAL)"
}

func readDSN(path string) string {
	return "file:" + path + "?mode=ro" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)"
}

// Open opens (creating if needed) the ledger database at path and brings its
// schema fully up to date. Migration failures are fatal: an inconsistent
// store never opens.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := sql.Open("sqlite", writeDSN(cleanPath))
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger db: %w", err)
	}
	if err := ensureForeignKeysEnabled(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:       db,
		path:     cleanPath,
		log:      opts.logger(),
		maxScore: opts.maxScore(),
	}
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly opens an existing ledger database for queries only. No
// migrations run; opening a database whose schema is behind fails on first
// touch of a missing table rather than here.
func OpenReadOnly(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("ledger path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := sql.Open("sqlite", readDSN(cleanPath))
	if err != nil {
		return nil, fmt.Errorf("open ledger db read-only: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger db: %w", err)
	}

	return &Store{
		db:       db,
		path:     cleanPath,
		log:      opts.logger(),
		maxScore: opts.maxScore(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// MaxScore returns the configured submission score cap.
func (s *Store) MaxScore() int {
	return s.maxScore
}

func ensureForeignKeysEnabled(db *sql.DB) error {
	var enabled int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// withTx runs fn in one transaction, committing on nil and rolling back on
// error. Busy results surface as ErrBusy.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
