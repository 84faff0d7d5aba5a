package sink

import (
	"context"
	"errors"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

// MultiSink fans every result out to all wrapped sinks.
type MultiSink struct {
	sinks []crawler.ResultSink
}

// NewMulti wraps sinks. Write stops at the first failing sink.
func NewMulti(sinks ...crawler.ResultSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write forwards the result to every sink in order.
func (m *MultiSink) Write(ctx context.Context, res crawler.Result) error {
	for _, s := range m.sinks {
		if err := s.Write(ctx, res); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, returning the joined errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
