// Package collyfetcher implements the fetch transport using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher using a Colly collector. Colly's own
// revisit tracking and robots handling are disabled: the frontier owns
// deduplication and the domain manager owns politeness.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, base: c}
}

// Fetch executes a single GET through a cloned collector so per-request
// callbacks never leak between calls.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Response, error) {
	if err := ctx.Err(); err != nil {
		return crawler.Response{}, err
	}

	collector := f.base.Clone()
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		result   crawler.Response
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		result = crawler.Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
			Headers:    headers,
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			fetchErr = &crawler.FetchError{
				Kind:       crawler.ErrKindHTTPStatus,
				StatusCode: r.StatusCode,
			}
			return
		}
		fetchErr = classify(err)
	})

	if err := collector.Visit(rawURL); err != nil && fetchErr == nil {
		fetchErr = classify(err)
	}
	collector.Wait()

	if fetchErr != nil {
		return crawler.Response{}, fetchErr
	}
	if result.URL == "" {
		return crawler.Response{}, &crawler.FetchError{
			Kind: crawler.ErrKindOther,
			Err:  errors.New("collector produced no response"),
		}
	}
	return result, nil
}

func classify(err error) *crawler.FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &crawler.FetchError{Kind: crawler.ErrKindTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &crawler.FetchError{Kind: crawler.ErrKindTimeout, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &crawler.FetchError{Kind: crawler.ErrKindConnection, Err: err}
	}
	return &crawler.FetchError{Kind: crawler.ErrKindOther, Err: err}
}
