package sourcecache

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ErrMiss reports that no fresh entry exists for the requested path.
var ErrMiss = errors.New("source cache miss")

// SetupSchema initializes the cache table in the provided database. It is
// idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS template_sources (
    path_hash TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    content BLOB NOT NULL,
    mod_time INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("could not create source cache schema: %w", err)
	}
	return nil
}

// Store persists template sources in an SQLite database, one row per path.
// It holds prepared SQL statements for the two hot operations.
type Store struct {
	db      *sql.DB
	stmtGet *sql.Stmt
	stmtPut *sql.Stmt
	logger  *slog.Logger
}

// NewStore creates a Store on an initialized database. It pre-compiles the
// SQL statements, returning an error if any preparation fails.
func NewStore(db *sql.DB) (*Store, error) {
	stmtGet, err := db.Prepare(`SELECT content, mod_time FROM template_sources WHERE path_hash = ?;`)
	if err != nil {
		return nil, err
	}

	stmtPut, err := db.Prepare(`
INSERT INTO template_sources (path_hash, path, content, mod_time) VALUES (?, ?, ?, ?)
ON CONFLICT(path_hash) DO UPDATE SET content = excluded.content, mod_time = excluded.mod_time;`)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:      db,
		stmtGet: stmtGet,
		stmtPut: stmtPut,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil
}

// SetLogger sets the logger for the Store. By default, all logs are discarded.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close releases the prepared SQL statements held by the Store.
func (s *Store) Close() {
	_ = s.stmtGet.Close()
	_ = s.stmtPut.Close()
}

// Get returns the cached content for path if an entry exists whose recorded
// modification time equals modTime, and ErrMiss otherwise.
func (s *Store) Get(ctx context.Context, path string, modTime time.Time) ([]byte, error) {
	var (
		content []byte
		cached  int64
	)
	err := s.stmtGet.QueryRowContext(ctx, pathKey(path)).Scan(&content, &cached)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrMiss, path)
	}
	if err != nil {
		return nil, err
	}
	if cached != modTime.UnixNano() {
		return nil, fmt.Errorf("%w: %q: stale entry", ErrMiss, path)
	}
	return content, nil
}

// Put stores content for path under the source's modification time, replacing
// any previous entry.
func (s *Store) Put(ctx context.Context, path string, content []byte, modTime time.Time) error {
	_, err := s.stmtPut.ExecContext(ctx, pathKey(path), path, content, modTime.UnixNano())
	if err != nil {
		return fmt.Errorf("could not cache source %q: %w", path, err)
	}
	return nil
}

// pathKey derives a fixed-width primary key, so arbitrarily long paths index
// uniformly.
func pathKey(path string) string {
	sum := sha1.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}
