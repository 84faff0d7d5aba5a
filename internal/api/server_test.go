package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/engine"
)

type fixedStats struct {
	stats engine.Stats
}

func (f fixedStats) Stats() (engine.Stats, error) { return f.stats, nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	src := fixedStats{stats: engine.Stats{
		RunID:    "run-1",
		Pages:    7,
		Frontier: map[string]int{"pending": 3, "done": 7, "total": 10},
	}}
	s := NewServer(0, src, zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestStatsReportsRun(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats engine.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Equal(t, "run-1", stats.RunID)
	require.Equal(t, int64(7), stats.Pages)
	require.Equal(t, 3, stats.Frontier["pending"])
}

func TestMetricsExposed(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
