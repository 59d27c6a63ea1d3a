// ABOUTME: SQLite-backed journal store with WAL mode and schema bootstrap
// ABOUTME: Implements the dispatch Recorder hook for best-effort journaling

package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/driftline/driftline-console/internal/dispatch"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the journal database at path.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "journal")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	// WAL keeps journal writes from blocking reads from the CLI.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS mutations (
		id              TEXT PRIMARY KEY,
		method          TEXT NOT NULL,
		path            TEXT NOT NULL,
		idempotency_key TEXT NOT NULL,
		origin          TEXT NOT NULL DEFAULT '',
		attempts        INTEGER NOT NULL DEFAULT 1,
		status          INTEGER NOT NULL DEFAULT 0,
		ok              INTEGER NOT NULL DEFAULT 0,
		err_text        TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_mutations_created_at ON mutations(created_at);
	CREATE INDEX IF NOT EXISTS idx_mutations_idempotency_key ON mutations(idempotency_key);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("creating journal schema: %w", err)
	}
	return nil
}

// Append persists the entry, assigning an ID when absent.
func (s *SQLiteStore) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mutations (id, method, path, idempotency_key, origin, attempts, status, ok, err_text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Method, e.Path, e.IdempotencyKey, e.Origin, e.Attempts, e.Status, boolToInt(e.OK), e.ErrText, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting journal entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. limit <= 0 means no limit.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Entry, error) {
	query := `
		SELECT id, method, path, idempotency_key, origin, attempts, status, ok, err_text, created_at
		FROM mutations ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		var ok int
		if err := rows.Scan(&e.ID, &e.Method, &e.Path, &e.IdempotencyKey, &e.Origin, &e.Attempts, &e.Status, &ok, &e.ErrText, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.OK = ok != 0
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Recorder adapts a Store into the dispatcher's journaling hook. Failures
// are logged and dropped; journaling never interferes with the mutation.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder wraps the store for use as a dispatch.Recorder.
func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store:  store,
		logger: slog.Default().With("component", "journal"),
	}
}

// RecordDispatch converts and appends the dispatch record.
func (r *Recorder) RecordDispatch(ctx context.Context, rec dispatch.Record) {
	e := &Entry{
		Method:         rec.Method,
		Path:           rec.Path,
		IdempotencyKey: rec.IdempotencyKey,
		Origin:         rec.Origin,
		Attempts:       rec.Attempts,
		Status:         rec.Status,
		OK:             rec.OK,
		ErrText:        rec.ErrText,
		CreatedAt:      rec.At,
	}
	// Journal even when the originating request's context was cancelled.
	if err := r.store.Append(context.WithoutCancel(ctx), e); err != nil {
		r.logger.Warn("failed to journal mutation", "path", rec.Path, "error", err)
	}
}
