// Package httpclient implements the plain HTTP fetch transport.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

const defaultBodyLimit = 10 << 20

// Config controls client behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// BodyLimit caps how many body bytes are read per page.
	BodyLimit int64
}

// Fetcher implements crawler.Fetcher over net/http with connection reuse.
// Redirects are followed by the client, so Response.URL is final.
type Fetcher struct {
	cfg    Config
	client *http.Client
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = defaultBodyLimit
	}
	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch executes a GET and returns the response, or a *crawler.FetchError
// classifying the failure. A status of 400 or above is a failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return crawler.Response{}, &crawler.FetchError{Kind: crawler.ErrKindOther, Err: fmt.Errorf("new request: %w", err)}
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return crawler.Response{}, classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, defaultBodyLimit))
		return crawler.Response{}, &crawler.FetchError{
			Kind:       crawler.ErrKindHTTPStatus,
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.BodyLimit))
	if err != nil {
		return crawler.Response{}, classifyTransportError(err)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return crawler.Response{
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}

// classifyTransportError maps transport failures onto the retry taxonomy.
func classifyTransportError(err error) *crawler.FetchError {
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
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// url.Error wraps dial failures and DNS errors alike.
		return &crawler.FetchError{Kind: crawler.ErrKindConnection, Err: err}
	}
	return &crawler.FetchError{Kind: crawler.ErrKindOther, Err: err}
}
