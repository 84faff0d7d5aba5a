// Package sink persists crawl results. Every sink implements
// crawler.ResultSink; the engine stays agnostic of the storage format.
package sink

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/config"
	"github.com/crawlkit/crawlkit/internal/crawler"
)

// New builds the sink selected by the output configuration. File-based
// formats write under cfg.Dir with the run ID in the file name.
func New(ctx context.Context, cfg config.OutputConfig, runID string, logger *zap.Logger) (crawler.ResultSink, error) {
	switch cfg.Format {
	case config.FormatJSONL:
		return NewJSONL(filepath.Join(cfg.Dir, runID+".jsonl"), true)
	case config.FormatSQLite:
		return NewSQLite(filepath.Join(cfg.Dir, runID+".db"))
	case config.FormatWARC:
		return NewWARC(filepath.Join(cfg.Dir, runID+".warc"))
	case config.FormatPostgres:
		return NewPostgres(ctx, PostgresConfig{
			DSN:   cfg.Postgres.DSN,
			Table: cfg.Postgres.Table,
		})
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Format)
	}
}
