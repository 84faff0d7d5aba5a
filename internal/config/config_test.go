package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 100, cfg.Crawl.MaxPages)
	require.Equal(t, 3, cfg.Crawl.MaxDepth)
	require.True(t, cfg.Crawl.SameOrigin)
	require.Equal(t, 5, cfg.Crawl.Concurrency)
	require.True(t, cfg.Politeness.RespectRobots)
	require.Equal(t, time.Second, cfg.Politeness.Delay())
	require.Equal(t, time.Hour, cfg.Politeness.RobotsTTL())
	require.Equal(t, FetcherHTTP, cfg.Fetcher.Kind)
	require.Equal(t, 10*time.Second, cfg.Fetcher.Timeout())
	require.Equal(t, FormatJSONL, cfg.Output.Format)
	require.False(t, cfg.API.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := `
crawl:
  max_pages: 7
  max_depth: 1
  same_origin: false
  concurrency: 2
politeness:
  delay_seconds: 0.25
  respect_robots: false
fetcher:
  kind: colly
output:
  format: sqlite
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Crawl.MaxPages)
	require.Equal(t, 1, cfg.Crawl.MaxDepth)
	require.False(t, cfg.Crawl.SameOrigin)
	require.Equal(t, 2, cfg.Crawl.Concurrency)
	require.Equal(t, 250*time.Millisecond, cfg.Politeness.Delay())
	require.False(t, cfg.Politeness.RespectRobots)
	require.Equal(t, FetcherColly, cfg.Fetcher.Kind)
	require.Equal(t, FormatSQLite, cfg.Output.Format)
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Crawl.MaxPages = 0
	require.ErrorContains(t, cfg.Validate(), "max_pages")

	cfg = base()
	cfg.Crawl.Concurrency = -1
	require.ErrorContains(t, cfg.Validate(), "concurrency")

	cfg = base()
	cfg.Fetcher.Kind = "carrier-pigeon"
	require.ErrorContains(t, cfg.Validate(), "fetcher.kind")

	cfg = base()
	cfg.Output.Format = "yaml"
	require.ErrorContains(t, cfg.Validate(), "output.format")

	cfg = base()
	cfg.Output.Format = FormatPostgres
	cfg.Output.Postgres.DSN = ""
	require.ErrorContains(t, cfg.Validate(), "postgres.dsn")

	cfg = base()
	cfg.API.Enabled = true
	cfg.API.Port = 100000
	require.ErrorContains(t, cfg.Validate(), "api.port")
}
