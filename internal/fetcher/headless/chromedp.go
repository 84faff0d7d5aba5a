// Package headless implements the fetch transport with headless Chrome,
// for pages whose content only exists after JavaScript execution.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

// Config controls the browser pool.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	MaxParallel int
}

// Fetcher renders pages in headless Chrome and implements crawler.Fetcher.
// A single browser process is shared; each Fetch opens a short-lived tab.
type Fetcher struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	sem             chan struct{}
	timeout         time.Duration
	userAgent       string
}

// New starts the shared browser and verifies it is usable.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 2
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &Fetcher{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		sem:             make(chan struct{}, cfg.MaxParallel),
		timeout:         cfg.Timeout,
		userAgent:       cfg.UserAgent,
	}, nil
}

// Close tears down the browser and allocator.
func (f *Fetcher) Close() error {
	if f == nil {
		return nil
	}
	f.browserCancel()
	f.allocatorCancel()
	return nil
}

// Fetch navigates a fresh tab to rawURL and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (crawler.Response, error) {
	release, err := f.acquireSlot(ctx)
	if err != nil {
		return crawler.Response{}, err
	}
	defer release()

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, f.timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	f.recordResponse(tabCtx, meta)

	html, err := f.render(taskCtx, rawURL)
	if err != nil {
		return crawler.Response{}, classify(err, ctx)
	}

	if meta.statusCode >= http.StatusBadRequest {
		return crawler.Response{}, &crawler.FetchError{
			Kind:       crawler.ErrKindHTTPStatus,
			StatusCode: meta.statusCode,
		}
	}

	return crawler.Response{
		URL:        meta.finalURL(rawURL),
		StatusCode: meta.statusCode,
		Body:       []byte(html),
		Headers:    meta.headers,
	}, nil
}

func (f *Fetcher) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case f.sem <- struct{}{}:
		return func() { <-f.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire render slot: %w", ctx.Err())
	}
}

func (f *Fetcher) render(ctx context.Context, rawURL string) (string, error) {
	var html string
	tasks := chromedp.Tasks{
		network.Enable(),
		emulation.SetUserAgentOverride(f.userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

type responseMeta struct {
	once       sync.Once
	statusCode int
	headers    http.Header
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: make(http.Header)}
}

func (m *responseMeta) finalURL(raw string) string {
	if m.url == "" {
		return raw
	}
	return m.url
}

func (f *Fetcher) recordResponse(tabCtx context.Context, meta *responseMeta) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		meta.once.Do(func() {
			meta.statusCode = int(resp.Response.Status)
			meta.url = resp.Response.URL
			for k, v := range resp.Response.Headers {
				meta.headers.Add(k, fmt.Sprint(v))
			}
		})
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

func classify(err error, parent context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &crawler.FetchError{Kind: crawler.ErrKindTimeout, Err: err}
	}
	return &crawler.FetchError{Kind: crawler.ErrKindConnection, Err: err}
}
