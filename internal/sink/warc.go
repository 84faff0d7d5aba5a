package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crawlkit/crawlkit/internal/crawler"
)

// WARCSink writes successful fetches as WARC 1.0 response records.
// Failure records carry no payload and are skipped.
type WARCSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewWARC creates the archive file and writes the warcinfo record.
func NewWARC(path string) (*WARCSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create output dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create warc output %s: %w", path, err)
	}
	s := &WARCSink{file: f}
	info := "software: crawlkit\r\nformat: WARC File Format 1.0\r\n"
	if err := s.writeRecord("warcinfo", "", "application/warc-fields", []byte(info)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Write appends one response record for a successful fetch.
func (s *WARCSink) Write(ctx context.Context, res crawler.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if res.Failed() {
		return nil
	}
	// Reconstruct a minimal HTTP message block. The raw wire bytes are
	// gone by this point; the status line and body are what we keep.
	var block bytes.Buffer
	fmt.Fprintf(&block, "HTTP/1.1 %d\r\nContent-Length: %d\r\n\r\n", res.StatusCode, len(res.Content))
	block.WriteString(res.Content)
	return s.writeRecord("response", res.URL, "application/http;msgtype=response", block.Bytes())
}

func (s *WARCSink) writeRecord(recordType, targetURI, contentType string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("warc sink is closed")
	}

	var header bytes.Buffer
	header.WriteString("WARC/1.0\r\n")
	fmt.Fprintf(&header, "WARC-Type: %s\r\n", recordType)
	fmt.Fprintf(&header, "WARC-Record-ID: <urn:uuid:%s>\r\n", uuid.NewString())
	fmt.Fprintf(&header, "WARC-Date: %s\r\n", time.Now().UTC().Format(time.RFC3339))
	if targetURI != "" {
		fmt.Fprintf(&header, "WARC-Target-URI: %s\r\n", targetURI)
	}
	fmt.Fprintf(&header, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&header, "Content-Length: %d\r\n", len(payload))
	header.WriteString("\r\n")

	if _, err := s.file.Write(header.Bytes()); err != nil {
		return fmt.Errorf("write warc header: %w", err)
	}
	if _, err := s.file.Write(payload); err != nil {
		return fmt.Errorf("write warc payload: %w", err)
	}
	if _, err := s.file.WriteString("\r\n\r\n"); err != nil {
		return fmt.Errorf("write warc trailer: %w", err)
	}
	return nil
}

// Close closes the archive.
func (s *WARCSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
