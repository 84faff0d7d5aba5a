package headless

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

func TestFetchRendersDynamicContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><body><script>document.body.innerHTML = '<div id="late">late content</div>';</script></body></html>`)
	}))
	defer srv.Close()

	f, err := New(Config{
		UserAgent:   "crawlkit-test",
		Timeout:     5 * time.Second,
		MaxParallel: 1,
	}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	defer func() { _ = f.Close() }()

	resp, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Skipf("render failed: %v", err)
	}
	if !strings.Contains(string(resp.Body), "late content") {
		t.Fatal("rendered body missing dynamic content")
	}
}

func TestClassifyTimeout(t *testing.T) {
	ctx := context.Background()
	err := classify(context.DeadlineExceeded, ctx)

	var fe *crawler.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, crawler.ErrKindTimeout, fe.Kind)
}

func TestClassifyPropagatesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := classify(fmt.Errorf("tab closed"), ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestResponseMetaFallsBackToRequestURL(t *testing.T) {
	meta := newResponseMeta()
	require.Equal(t, "http://a.example/", meta.finalURL("http://a.example/"))

	meta.url = "http://a.example/final"
	require.Equal(t, "http://a.example/final", meta.finalURL("http://a.example/"))
}
