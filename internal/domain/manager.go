// Package domain tracks per-origin politeness state: robots.txt rules,
// crawl-delay spacing, and error budgets.
package domain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

const robotsBodyLimit = 1 << 20

// Config controls Manager behavior.
type Config struct {
	UserAgent     string
	DefaultDelay  time.Duration
	RespectRobots bool
	MaxRetries    int
	RobotsTTL     time.Duration
	RobotsTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "crawlkit/0.1"
	}
	if c.RobotsTTL <= 0 {
		c.RobotsTTL = time.Hour
	}
	if c.RobotsTimeout <= 0 {
		c.RobotsTimeout = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}

// OriginStats is the per-origin view returned by Stats.
type OriginStats struct {
	RequestCount int     `json:"request_count"`
	ErrorCount   int     `json:"error_count"`
	CrawlDelay   float64 `json:"crawl_delay"`
}

// originState holds all mutable state for one origin. Its mutex serializes
// robots loading and rate-limit bookkeeping for that origin only; different
// origins never contend.
type originState struct {
	mu            sync.Mutex
	robots        *robotstxt.RobotsData
	robotsFetched bool
	robotsAt      time.Time
	lastRequest   time.Time
	crawlDelay    time.Duration
	requests      int
	errors        int
}

// Manager owns per-origin politeness state. Origins are created lazily on
// first reference and live for the process lifetime of the crawl.
type Manager struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu      sync.RWMutex
	origins map[string]*originState
}

// NewManager builds a Manager.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.RobotsTimeout},
		logger:  logger,
		origins: make(map[string]*originState),
	}
}

func (m *Manager) state(origin string) *originState {
	m.mu.RLock()
	st, ok := m.origins[origin]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.origins[origin]; ok {
		return st
	}
	st = &originState{crawlDelay: m.cfg.DefaultDelay}
	m.origins[origin] = st
	return st
}

// IsAllowed reports whether robots.txt permits fetching the URL. The ruleset
// is fetched on first reference per origin and refreshed after the TTL.
// Missing robots.txt, fetch errors, and non-200 responses fail open. When
// politeness enforcement is disabled this is a constant true. A URL whose
// origin cannot be determined is never allowed.
func (m *Manager) IsAllowed(ctx context.Context, rawURL string) bool {
	if !m.cfg.RespectRobots {
		return true
	}
	origin, err := crawler.Origin(rawURL)
	if err != nil {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	st := m.state(origin)
	st.mu.Lock()
	defer st.mu.Unlock()

	m.ensureRobotsLocked(ctx, st, origin)
	if st.robots == nil {
		return true
	}
	group := st.robots.FindGroup(m.cfg.UserAgent)
	if group == nil {
		return true
	}
	return group.Test(requestPath(parsed))
}

func requestPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// ensureRobotsLocked loads or refreshes the origin's robots.txt. The caller
// holds the origin mutex.
func (m *Manager) ensureRobotsLocked(ctx context.Context, st *originState, origin string) {
	if st.robotsFetched && time.Since(st.robotsAt) < m.cfg.RobotsTTL {
		return
	}

	st.robots = nil
	st.robotsFetched = true
	st.robotsAt = time.Now()

	data, err := m.fetchRobots(ctx, origin)
	if err != nil {
		m.logger.Debug("robots fetch failed; allowing all",
			zap.String("origin", origin), zap.Error(err))
		return
	}
	st.robots = data
	if group := data.FindGroup(m.cfg.UserAgent); group != nil && group.CrawlDelay > 0 {
		if group.CrawlDelay > m.cfg.DefaultDelay {
			st.crawlDelay = group.CrawlDelay
			m.logger.Debug("robots raised crawl delay",
				zap.String("origin", origin), zap.Duration("delay", st.crawlDelay))
		}
	}
}

func (m *Manager) fetchRobots(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("robots status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, robotsBodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

// WaitForRateLimit suspends the caller until the time since the origin's
// last permitted request is at least the effective crawl delay, then records
// the request. The origin mutex is held across compute, sleep, and update so
// concurrent callers for one origin queue up instead of racing on a stale
// timestamp. The first request for a fresh origin never waits.
func (m *Manager) WaitForRateLimit(ctx context.Context, rawURL string) error {
	origin, err := crawler.Origin(rawURL)
	if err != nil {
		return fmt.Errorf("origin of %q: %w", rawURL, err)
	}

	st := m.state(origin)
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.lastRequest.IsZero() {
		wait := st.crawlDelay - time.Since(st.lastRequest)
		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	st.lastRequest = time.Now()
	st.requests++
	return nil
}

// RecordError increments the origin's error counter.
func (m *Manager) RecordError(rawURL string) {
	origin, err := crawler.Origin(rawURL)
	if err != nil {
		return
	}
	st := m.state(origin)
	st.mu.Lock()
	st.errors++
	st.mu.Unlock()
}

// ShouldRetry reports whether the origin's error count is still under the
// configured maximum. Unknown origins default to optimistic.
func (m *Manager) ShouldRetry(rawURL string) bool {
	origin, err := crawler.Origin(rawURL)
	if err != nil {
		return false
	}

	m.mu.RLock()
	st, ok := m.origins[origin]
	m.mu.RUnlock()
	if !ok {
		return true
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.errors < m.cfg.MaxRetries
}

// Stats returns a snapshot of per-origin counters.
func (m *Manager) Stats() map[string]OriginStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]OriginStats, len(m.origins))
	for origin, st := range m.origins {
		st.mu.Lock()
		stats[origin] = OriginStats{
			RequestCount: st.requests,
			ErrorCount:   st.errors,
			CrawlDelay:   st.crawlDelay.Seconds(),
		}
		st.mu.Unlock()
	}
	return stats
}
