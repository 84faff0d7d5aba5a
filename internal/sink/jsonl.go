package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

// JSONLSink streams one JSON object per line, flushed after every record
// so partial output survives a crash.
type JSONLSink struct {
	mu             sync.Mutex
	file           *os.File
	enc            *json.Encoder
	count          int
	includeContent bool
}

// NewJSONL opens (and truncates) path for writing.
func NewJSONL(path string, includeContent bool) (*JSONLSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create jsonl output %s: %w", path, err)
	}
	return &JSONLSink{
		file:           f,
		enc:            json.NewEncoder(f),
		includeContent: includeContent,
	}, nil
}

// Write appends one result line.
func (s *JSONLSink) Write(ctx context.Context, res crawler.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.includeContent {
		res.Content = ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("jsonl sink is closed")
	}
	if err := s.enc.Encode(res); err != nil {
		return fmt.Errorf("encode result for %s: %w", res.URL, err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync jsonl output: %w", err)
	}
	s.count++
	return nil
}

// Count reports the number of records written so far.
func (s *JSONLSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close flushes and closes the output file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
