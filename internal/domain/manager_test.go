package domain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func robotsServer(t *testing.T, body string, status int, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if fetches != nil {
			fetches.Add(1)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIsAllowedHonorsDisallow(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow: /private\n", http.StatusOK, nil)
	m := NewManager(Config{UserAgent: "crawlkit-test", RespectRobots: true}, nil)

	ctx := context.Background()
	require.True(t, m.IsAllowed(ctx, srv.URL+"/public/page"))
	require.False(t, m.IsAllowed(ctx, srv.URL+"/private/page"))
	require.False(t, m.IsAllowed(ctx, srv.URL+"/private"))
}

func TestIsAllowedFailsOpen(t *testing.T) {
	ctx := context.Background()

	missing := robotsServer(t, "not found", http.StatusNotFound, nil)
	m := NewManager(Config{RespectRobots: true}, nil)
	require.True(t, m.IsAllowed(ctx, missing.URL+"/anything"))

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	broken.Close() // connection refused from here on
	require.True(t, m.IsAllowed(ctx, broken.URL+"/anything"))
}

func TestIsAllowedDisabledSkipsFetch(t *testing.T) {
	var fetches atomic.Int32
	srv := robotsServer(t, "User-agent: *\nDisallow: /\n", http.StatusOK, &fetches)

	m := NewManager(Config{RespectRobots: false}, nil)
	require.True(t, m.IsAllowed(context.Background(), srv.URL+"/blocked-by-robots"))
	require.Zero(t, fetches.Load())
}

func TestRobotsCachedWithinTTL(t *testing.T) {
	var fetches atomic.Int32
	srv := robotsServer(t, "User-agent: *\nDisallow: /private\n", http.StatusOK, &fetches)

	m := NewManager(Config{RespectRobots: true, RobotsTTL: time.Hour}, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		m.IsAllowed(ctx, srv.URL+"/page")
	}
	require.Equal(t, int32(1), fetches.Load())
}

func TestRobotsRefetchedAfterTTL(t *testing.T) {
	var fetches atomic.Int32
	srv := robotsServer(t, "User-agent: *\nAllow: /\n", http.StatusOK, &fetches)

	m := NewManager(Config{RespectRobots: true, RobotsTTL: 30 * time.Millisecond}, nil)
	ctx := context.Background()

	m.IsAllowed(ctx, srv.URL+"/a")
	require.Equal(t, int32(1), fetches.Load())

	time.Sleep(50 * time.Millisecond)
	m.IsAllowed(ctx, srv.URL+"/b")
	require.Equal(t, int32(2), fetches.Load())
}

func TestRobotsCrawlDelayRaisesEffectiveDelay(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 2\n", http.StatusOK, nil)

	m := NewManager(Config{
		RespectRobots: true,
		DefaultDelay:  500 * time.Millisecond,
	}, nil)
	ctx := context.Background()
	require.True(t, m.IsAllowed(ctx, srv.URL+"/page"))

	stats := m.Stats()
	require.Len(t, stats, 1)
	for _, s := range stats {
		require.InDelta(t, 2.0, s.CrawlDelay, 0.001)
	}
}

func TestRobotsCrawlDelayNeverLowersDefault(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 1\n", http.StatusOK, nil)

	m := NewManager(Config{
		RespectRobots: true,
		DefaultDelay:  3 * time.Second,
	}, nil)
	require.True(t, m.IsAllowed(context.Background(), srv.URL+"/page"))

	for _, s := range m.Stats() {
		require.InDelta(t, 3.0, s.CrawlDelay, 0.001)
	}
}

func TestWaitForRateLimitSpacing(t *testing.T) {
	m := NewManager(Config{DefaultDelay: 200 * time.Millisecond}, nil)
	ctx := context.Background()
	url := "http://spacing.example/page"

	start := time.Now()
	require.NoError(t, m.WaitForRateLimit(ctx, url))
	require.Less(t, time.Since(start), 100*time.Millisecond,
		"first request for a fresh origin must not wait")

	second := time.Now()
	require.NoError(t, m.WaitForRateLimit(ctx, url))
	require.GreaterOrEqual(t, time.Since(second), 190*time.Millisecond)
}

func TestWaitForRateLimitSerializesPerOrigin(t *testing.T) {
	m := NewManager(Config{DefaultDelay: 100 * time.Millisecond}, nil)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, m.WaitForRateLimit(ctx, "http://serial.example/p"))
		}()
	}
	wg.Wait()
	// Three requests to one origin need at least two full delay intervals.
	require.GreaterOrEqual(t, time.Since(start), 190*time.Millisecond)
}

func TestWaitForRateLimitIndependentOrigins(t *testing.T) {
	m := NewManager(Config{DefaultDelay: 300 * time.Millisecond}, nil)
	ctx := context.Background()

	require.NoError(t, m.WaitForRateLimit(ctx, "http://one.example/"))
	start := time.Now()
	require.NoError(t, m.WaitForRateLimit(ctx, "http://two.example/"))
	require.Less(t, time.Since(start), 100*time.Millisecond,
		"different origins must not block each other")
}

func TestWaitForRateLimitHonorsContext(t *testing.T) {
	m := NewManager(Config{DefaultDelay: 5 * time.Second}, nil)
	url := "http://slow.example/"
	require.NoError(t, m.WaitForRateLimit(context.Background(), url))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := m.WaitForRateLimit(ctx, url)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}

func TestRecordErrorAndShouldRetry(t *testing.T) {
	m := NewManager(Config{MaxRetries: 2}, nil)
	url := "http://flaky.example/page"

	require.True(t, m.ShouldRetry(url), "unknown origin defaults to optimistic")

	m.RecordError(url)
	require.True(t, m.ShouldRetry(url))

	m.RecordError(url)
	require.False(t, m.ShouldRetry(url))

	stats := m.Stats()
	require.Equal(t, 2, stats["http://flaky.example"].ErrorCount)
}

func TestStatsTracksRequests(t *testing.T) {
	m := NewManager(Config{DefaultDelay: 0}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, m.WaitForRateLimit(ctx, "http://counted.example/"))
	}
	stats := m.Stats()
	require.Equal(t, 3, stats["http://counted.example"].RequestCount)
}
