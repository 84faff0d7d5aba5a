package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

const pagesSchema = `
CREATE TABLE IF NOT EXISTS pages (
    run_id         TEXT NOT NULL,
    url            TEXT NOT NULL,
    status         INTEGER NOT NULL,
    content_length INTEGER NOT NULL,
    depth          INTEGER NOT NULL,
    source_url     TEXT,
    fetched_at     TEXT NOT NULL,
    content        TEXT,
    error          TEXT,
    retryable      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_pages_run ON pages (run_id);
CREATE INDEX IF NOT EXISTS idx_pages_url ON pages (url);
`

// SQLiteSink stores crawl results in a local SQLite database.
type SQLiteSink struct {
	mu sync.Mutex
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and ensures the schema.
func NewSQLite(path string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir for %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=rwc&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open results db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(pagesSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply results schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write inserts one result row.
func (s *SQLiteSink) Write(ctx context.Context, res crawler.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (run_id, url, status, content_length, depth, source_url, fetched_at, content, error, retryable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID,
		res.URL,
		res.StatusCode,
		res.ContentLength,
		res.Depth,
		res.SourceURL,
		res.FetchedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
		res.Content,
		res.Error,
		res.Retryable,
	)
	if err != nil {
		return fmt.Errorf("insert result for %s: %w", res.URL, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
