package sink

import (
	"context"

	"go.uber.org/zap"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

// LogSink emits one structured log line per result. Useful combined with
// a persistent sink through Multi for live progress.
type LogSink struct {
	logger *zap.Logger
}

// NewLog returns a sink logging through logger.
func NewLog(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Write logs the outcome of one page.
func (s *LogSink) Write(_ context.Context, res crawler.Result) error {
	fields := []zap.Field{
		zap.String("url", res.URL),
		zap.Int("depth", res.Depth),
		zap.Int("status", res.StatusCode),
	}
	if res.Failed() {
		s.logger.Warn("page failed",
			append(fields, zap.String("error", res.Error), zap.Bool("retryable", res.Retryable))...)
		return nil
	}
	s.logger.Info("page crawled",
		append(fields, zap.Int("content_length", res.ContentLength))...)
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error { return nil }
