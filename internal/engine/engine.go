// Package engine implements the concurrent crawl scheduler: a fixed worker
// pool draining the frontier, applying politeness, fetching, extracting
// links, and classifying failures for selective retry.
package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/crawlkit/crawlkit/internal/crawler"
	"github.com/crawlkit/crawlkit/internal/domain"
	"github.com/crawlkit/crawlkit/internal/frontier"
)

// Config controls scheduling behavior.
type Config struct {
	// RunID stamps every result record; generated when empty.
	RunID string

	// MaxPages is a hard ceiling on processed pages (success or error).
	MaxPages int

	// MaxDepth is the deepest level links are extracted from.
	MaxDepth int

	// SameOrigin restricts discovered links to the seed origins.
	SameOrigin bool

	// Concurrency is the fixed worker pool size.
	Concurrency int

	// RetryPasses re-runs failed entries after the initial drain.
	RetryPasses int

	// GlobalRPS caps requests per second across all origins when positive.
	GlobalRPS float64

	// Blocklist drops discovered links whose host matches; nil blocks nothing.
	Blocklist *crawler.Blocklist

	// PollInterval is the backoff used when the frontier is momentarily
	// empty but work is still in flight.
	PollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	return c
}

// Stats is a point-in-time snapshot of crawl progress exposed to the ops API
// and the CLI summary.
type Stats struct {
	RunID    string                        `json:"run_id"`
	Pages    int64                         `json:"pages_processed"`
	Frontier map[string]int                `json:"frontier"`
	Origins  map[string]domain.OriginStats `json:"origins"`
}

// Engine orchestrates the frontier, the domain manager, and the fetcher. It
// owns neither: all queue and politeness mutation goes through their
// operations.
type Engine struct {
	cfg      Config
	frontier *frontier.Frontier
	domains  *domain.Manager
	fetcher  crawler.Fetcher
	sink     crawler.ResultSink
	clock    crawler.Clock
	logger   *zap.Logger
	limiter  *rate.Limiter

	seedOrigins map[string]struct{}

	// pages counts budget reservations; inflight counts workers holding a
	// task between Next and its terminal mark.
	pages    atomic.Int64
	inflight atomic.Int64
}

// New builds an Engine.
func New(
	cfg Config,
	front *frontier.Frontier,
	domains *domain.Manager,
	fetcher crawler.Fetcher,
	sink crawler.ResultSink,
	logger *zap.Logger,
) *Engine {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.GlobalRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), 1)
	}
	return &Engine{
		cfg:         cfg,
		frontier:    front,
		domains:     domains,
		fetcher:     fetcher,
		sink:        sink,
		clock:       crawler.SystemClock{},
		logger:      logger,
		limiter:     limiter,
		seedOrigins: make(map[string]struct{}),
	}
}

// Seed enqueues the starting URLs at depth 0 and registers their origins for
// same-origin filtering. It returns the number of URLs actually added, which
// may be lower on resumed crawls.
func (e *Engine) Seed(urls ...string) (int, error) {
	added := 0
	for _, raw := range urls {
		normalized, err := crawler.NormalizeURL(raw)
		if err != nil {
			return added, err
		}
		origin, err := crawler.Origin(normalized)
		if err != nil {
			return added, err
		}
		e.seedOrigins[origin] = struct{}{}

		ok, err := e.frontier.Add(crawler.NewTask(normalized, 0, ""))
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Run drains the frontier with the configured worker pool, then performs up
// to RetryPasses requeue-and-drain rounds over failed entries. It returns
// when the frontier is exhausted, the page budget is reached, or the context
// is cancelled; individual task failures never abort the run.
func (e *Engine) Run(ctx context.Context) error {
	for pass := 0; ; pass++ {
		if err := e.drain(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil || pass >= e.cfg.RetryPasses || e.budgetExhausted() {
			return nil
		}
		moved, err := e.frontier.RequeueFailed()
		if err != nil {
			return err
		}
		if moved == 0 {
			return nil
		}
		e.logger.Info("retry pass",
			zap.Int("pass", pass+1),
			zap.Int("requeued", moved),
		)
	}
}

func (e *Engine) drain(ctx context.Context) error {
	g := new(errgroup.Group)
	for i := 0; i < e.cfg.Concurrency; i++ {
		worker := e.logger.Named("worker").With(zap.Int("index", i))
		g.Go(func() error {
			return e.workerLoop(ctx, worker)
		})
	}
	return g.Wait()
}

// workerLoop pulls tasks until the frontier drains, the budget is spent, or
// the context ends. Only frontier storage failures propagate as errors.
func (e *Engine) workerLoop(ctx context.Context, logger *zap.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		e.inflight.Add(1)
		if !e.reserve() {
			e.inflight.Add(-1)
			return nil
		}

		task, err := e.frontier.Next("")
		if err != nil {
			e.release()
			e.inflight.Add(-1)
			return err
		}
		if task == nil {
			e.release()
			if e.inflight.Add(-1) == 0 {
				return nil
			}
			if !e.pause(ctx) {
				return nil
			}
			continue
		}

		emitted, err := e.process(ctx, *task, logger)
		if !emitted {
			e.release()
		}
		e.inflight.Add(-1)
		if err != nil {
			return err
		}
	}
}

// reserve claims one unit of the page budget.
func (e *Engine) reserve() bool {
	for {
		current := e.pages.Load()
		if current >= int64(e.cfg.MaxPages) {
			return false
		}
		if e.pages.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// release returns a budget unit claimed for a task that produced no record.
func (e *Engine) release() {
	e.pages.Add(-1)
}

func (e *Engine) budgetExhausted() bool {
	return e.pages.Load() >= int64(e.cfg.MaxPages)
}

func (e *Engine) pause(ctx context.Context) bool {
	timer := time.NewTimer(e.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// process runs the per-task state machine. The bool result reports whether a
// result record was emitted (and the budget unit consumed); the error is
// fatal storage failure only.
func (e *Engine) process(ctx context.Context, task crawler.CrawlTask, logger *zap.Logger) (bool, error) {
	url := task.URL

	// A stop signal between Next and here must not lose the task.
	if ctx.Err() != nil {
		return false, e.frontier.MarkFailed(url)
	}

	if !e.domains.IsAllowed(ctx, url) {
		TotalRobotsDenied.Inc()
		logger.Debug("robots disallowed", zap.String("url", url))
		// Permanent skip, not an error: no record is emitted.
		return false, e.frontier.MarkDone(url)
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return false, e.frontier.MarkFailed(url)
		}
	}
	if err := e.domains.WaitForRateLimit(ctx, url); err != nil {
		return false, e.frontier.MarkFailed(url)
	}

	resp, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false, e.frontier.MarkFailed(url)
		}
		return e.handleFetchError(ctx, task, err, logger)
	}

	TotalPagesFetched.Inc()
	result := crawler.Result{
		RunID:         e.cfg.RunID,
		URL:           resp.URL,
		StatusCode:    resp.StatusCode,
		ContentLength: resp.ContentLength(),
		Depth:         task.Depth,
		SourceURL:     task.SourceURL,
		FetchedAt:     e.clock.Now(),
		Content:       resp.Text(),
	}

	if task.Depth < e.cfg.MaxDepth {
		if err := e.enqueueLinks(task, resp); err != nil {
			return false, err
		}
	}
	if err := e.frontier.MarkDone(url); err != nil {
		return false, err
	}

	e.emit(ctx, result, logger)
	logger.Debug("page processed",
		zap.String("url", result.URL),
		zap.Int("status", result.StatusCode),
		zap.Int("depth", result.Depth),
	)
	return true, nil
}

// enqueueLinks extracts links from a fetched page, filters them to crawl
// scope, and adds the unseen remainder at depth+1.
func (e *Engine) enqueueLinks(task crawler.CrawlTask, resp crawler.Response) error {
	links := crawler.ExtractLinks(resp.Body, resp.URL)
	tasks := make([]crawler.CrawlTask, 0, len(links))
	for _, link := range links {
		if e.cfg.Blocklist.BlocksURL(link) {
			continue
		}
		if e.cfg.SameOrigin {
			origin, err := crawler.Origin(link)
			if err != nil {
				continue
			}
			if _, ok := e.seedOrigins[origin]; !ok {
				continue
			}
		}
		seen, err := e.frontier.IsSeen(link)
		if err != nil {
			return err
		}
		if seen {
			continue
		}
		tasks = append(tasks, crawler.NewTask(link, task.Depth+1, task.URL))
	}

	added, err := e.frontier.AddMany(tasks)
	if err != nil {
		return err
	}
	TotalLinksDiscovered.Add(float64(added))
	return nil
}

// handleFetchError applies the failure taxonomy: timeouts, connection
// failures, and 5xx are retryable; 4xx is permanent; anything unclassified
// retries while the origin's error budget lasts and then is surfaced as an
// exhausted failure.
func (e *Engine) handleFetchError(
	ctx context.Context,
	task crawler.CrawlTask,
	fetchErr error,
	logger *zap.Logger,
) (bool, error) {
	url := task.URL
	TotalFetchErrors.Inc()

	result := crawler.Result{
		RunID:     e.cfg.RunID,
		URL:       url,
		Depth:     task.Depth,
		SourceURL: task.SourceURL,
		FetchedAt: e.clock.Now(),
	}

	var fe *crawler.FetchError
	if errors.As(fetchErr, &fe) && fe.Kind != crawler.ErrKindOther {
		switch fe.Kind {
		case crawler.ErrKindTimeout, crawler.ErrKindConnection:
			e.domains.RecordError(url)
			if err := e.frontier.MarkFailed(url); err != nil {
				return false, err
			}
			result.Error = string(fe.Kind)
			result.Retryable = true
			TotalRetryableErrors.Inc()

		case crawler.ErrKindHTTPStatus:
			result.Error = fe.Error()
			result.StatusCode = fe.StatusCode
			if fe.StatusCode >= 500 {
				e.domains.RecordError(url)
				if err := e.frontier.MarkFailed(url); err != nil {
					return false, err
				}
				result.Retryable = true
				TotalRetryableErrors.Inc()
			} else {
				if err := e.frontier.MarkDone(url); err != nil {
					return false, err
				}
			}
		}
	} else {
		e.domains.RecordError(url)
		result.Error = fetchErr.Error()
		if e.domains.ShouldRetry(url) {
			if err := e.frontier.MarkFailed(url); err != nil {
				return false, err
			}
			result.Retryable = true
			TotalRetryableErrors.Inc()
		} else {
			// Error budget spent: stop cycling, but the record keeps its
			// error field so exhausted retries stay distinguishable from
			// success in aggregate counts.
			if err := e.frontier.MarkDone(url); err != nil {
				return false, err
			}
		}
	}

	e.emit(ctx, result, logger)
	logger.Debug("task failed",
		zap.String("url", url),
		zap.String("error", result.Error),
		zap.Bool("retryable", result.Retryable),
	)
	return true, nil
}

// emit pushes a record to the sink. Sink failures are logged, not fatal: the
// crawl outlives its output.
func (e *Engine) emit(ctx context.Context, result crawler.Result, logger *zap.Logger) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Write(ctx, result); err != nil {
		logger.Warn("sink write failed",
			zap.String("url", result.URL),
			zap.Error(err),
		)
	}
}

// PagesProcessed returns the number of budget units consumed so far.
func (e *Engine) PagesProcessed() int64 {
	return e.pages.Load()
}

// Stats snapshots crawl progress.
func (e *Engine) Stats() (Stats, error) {
	frontierStats, err := e.frontier.Stats()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		RunID:    e.cfg.RunID,
		Pages:    e.pages.Load(),
		Frontier: frontierStats,
		Origins:  e.domains.Stats(),
	}, nil
}
