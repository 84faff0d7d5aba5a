// Package frontier implements the persistent, deduplicated, priority-ordered
// URL queue backed by SQLite, with a bloom filter front for cheap membership
// checks.
package frontier

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/crawlkit/crawlkit/internal/crawler"
)

// Options configures frontier behavior.
type Options struct {
	// SeenCapacity sizes the bloom filter for the expected URL count.
	SeenCapacity uint

	// SeenErrorRate is the accepted false-positive rate of the seen-set.
	// A false positive silently drops a rediscoverable URL; that is
	// documented lossy behavior, not a correctness violation.
	SeenErrorRate float64
}

func (o Options) withDefaults() Options {
	if o.SeenCapacity == 0 {
		o.SeenCapacity = 100000
	}
	if o.SeenErrorRate <= 0 || o.SeenErrorRate >= 1 {
		o.SeenErrorRate = 0.001
	}
	return o
}

// Frontier owns queue persistence and the seen-set. All operations are
// serialized by a single mutex; SQLite supports only one writer anyway, so
// finer locking would buy nothing.
type Frontier struct {
	mu     sync.Mutex
	db     *sql.DB
	seen   *bloom.BloomFilter
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS queue (
	url TEXT PRIMARY KEY,
	origin TEXT NOT NULL,
	depth INTEGER NOT NULL,
	priority REAL NOT NULL,
	source_url TEXT,
	enqueued_at INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending'
);
CREATE INDEX IF NOT EXISTS idx_queue_status ON queue(status);
CREATE INDEX IF NOT EXISTS idx_queue_origin ON queue(origin);
CREATE INDEX IF NOT EXISTS idx_queue_priority ON queue(priority DESC, enqueued_at ASC);
`

// Open opens or creates a frontier database at path. Pass ":memory:" for an
// ephemeral queue. On open, rows stuck in `processing` from a previous run
// are reset to `pending` and the seen-set is rebuilt from the queue table,
// making crawls crash-resumable.
func Open(path string, opts Options, logger *zap.Logger) (*Frontier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create frontier dir: %w", err)
		}
		dsn = path + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open frontier db: %w", err)
	}
	// SQLite supports a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create frontier schema: %w", err)
	}

	f := &Frontier{
		db:     db,
		seen:   bloom.NewWithEstimates(opts.SeenCapacity, opts.SeenErrorRate),
		logger: logger,
	}
	if err := f.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return f, nil
}

// recover resets stale processing rows and rebuilds the bloom filter.
func (f *Frontier) recover() error {
	res, err := f.db.Exec(
		"UPDATE queue SET status = ? WHERE status = ?",
		crawler.StatusPending, crawler.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("reset stale processing rows: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		f.logger.Info("recovered interrupted tasks", zap.Int64("count", n))
	}

	rows, err := f.db.Query("SELECT url FROM queue")
	if err != nil {
		return fmt.Errorf("rebuild seen-set: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return fmt.Errorf("scan seen url: %w", err)
		}
		f.seen.AddString(url)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate seen urls: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (f *Frontier) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.db.Close()
}

// Add persists a task as pending unless its normalized URL was already seen.
// It returns true only when the task was actually inserted.
func (f *Frontier) Add(task crawler.CrawlTask) (bool, error) {
	url, err := crawler.NormalizeURL(task.URL)
	if err != nil {
		return false, fmt.Errorf("normalize %q: %w", task.URL, err)
	}
	origin, err := crawler.Origin(url)
	if err != nil {
		return false, fmt.Errorf("origin of %q: %w", url, err)
	}
	enqueuedAt := task.EnqueuedAt
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen.TestString(url) {
		return false, nil
	}

	res, err := f.db.Exec(
		`INSERT OR IGNORE INTO queue (url, origin, depth, priority, source_url, enqueued_at, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		url, origin, task.Depth, task.Priority, nullable(task.SourceURL),
		enqueuedAt.UnixMicro(), crawler.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("insert %q: %w", url, err)
	}
	f.seen.AddString(url)

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// AddMany applies Add to each task and returns the number actually inserted.
func (f *Frontier) AddMany(tasks []crawler.CrawlTask) (int, error) {
	added := 0
	for _, task := range tasks {
		ok, err := f.Add(task)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Next atomically selects the pending entry with the highest priority
// (enqueue time breaking ties FIFO), transitions it to processing, and
// returns it. originFilter restricts selection to one origin when non-empty.
// It returns nil when no matching pending entry exists.
func (f *Frontier) Next(originFilter string) (*crawler.CrawlTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx, err := f.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin next tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `SELECT url, depth, priority, source_url, enqueued_at FROM queue WHERE status = ?`
	args := []any{crawler.StatusPending}
	if originFilter != "" {
		query += " AND origin = ?"
		args = append(args, originFilter)
	}
	query += " ORDER BY priority DESC, enqueued_at ASC LIMIT 1"

	var (
		task       crawler.CrawlTask
		sourceURL  sql.NullString
		enqueuedAt int64
	)
	err = tx.QueryRow(query, args...).Scan(&task.URL, &task.Depth, &task.Priority, &sourceURL, &enqueuedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next: %w", err)
	}
	task.SourceURL = sourceURL.String
	task.EnqueuedAt = time.UnixMicro(enqueuedAt).UTC()

	if _, err := tx.Exec(
		"UPDATE queue SET status = ? WHERE url = ?",
		crawler.StatusProcessing, task.URL,
	); err != nil {
		return nil, fmt.Errorf("mark processing %q: %w", task.URL, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit next tx: %w", err)
	}
	return &task, nil
}

// MarkDone transitions a URL to the terminal done state. Idempotent.
func (f *Frontier) MarkDone(rawURL string) error {
	return f.setStatus(rawURL, crawler.StatusDone, false)
}

// MarkFailed transitions a URL to failed, making it eligible for a later
// requeue pass. Entries already done stay done.
func (f *Frontier) MarkFailed(rawURL string) error {
	return f.setStatus(rawURL, crawler.StatusFailed, true)
}

func (f *Frontier) setStatus(rawURL string, status crawler.Status, protectDone bool) error {
	url, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", rawURL, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	query := "UPDATE queue SET status = ? WHERE url = ?"
	args := []any{status, url}
	if protectDone {
		query += " AND status != ?"
		args = append(args, crawler.StatusDone)
	}
	if _, err := f.db.Exec(query, args...); err != nil {
		return fmt.Errorf("set status %s on %q: %w", status, url, err)
	}
	return nil
}

// RequeueFailed moves all failed entries back to pending and returns the
// count moved. Used for retry passes.
func (f *Frontier) RequeueFailed() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	res, err := f.db.Exec(
		"UPDATE queue SET status = ? WHERE status = ?",
		crawler.StatusPending, crawler.StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue failed entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Stats returns entry counts per status plus a "total" key.
func (f *Frontier) Stats() (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rows, err := f.db.Query("SELECT status, COUNT(*) FROM queue GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	stats := make(map[string]int)
	total := 0
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats[status] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	stats["total"] = total
	return stats, nil
}

// PendingCount returns the number of pending entries.
func (f *Frontier) PendingCount() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var count int
	err := f.db.QueryRow(
		"SELECT COUNT(*) FROM queue WHERE status = ?", crawler.StatusPending,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// IsSeen reports whether a URL was already added, using the same
// normalization as Add. The bloom filter answers first; a positive there may
// rarely be wrong, a negative never is.
func (f *Frontier) IsSeen(rawURL string) (bool, error) {
	url, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return false, fmt.Errorf("normalize %q: %w", rawURL, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.seen.TestString(url) {
		return true, nil
	}
	var exists int
	err = f.db.QueryRow("SELECT COUNT(*) FROM queue WHERE url = ?", url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %q: %w", url, err)
	}
	return exists > 0, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
