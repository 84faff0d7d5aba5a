// Package crawler defines core types shared across subsystems.
package crawler

import (
	"fmt"
	"net/http"
	"time"
)

// Status represents the lifecycle state of a frontier entry.
type Status string

// Frontier entry states persisted in the queue store.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// CrawlTask is one queued unit of work. URL is the normalized unique key.
type CrawlTask struct {
	URL        string
	Depth      int
	Priority   float64
	SourceURL  string
	EnqueuedAt time.Time
}

// NewTask builds a task with the default priority and current enqueue time.
func NewTask(url string, depth int, sourceURL string) CrawlTask {
	return CrawlTask{
		URL:        url,
		Depth:      depth,
		Priority:   1.0,
		SourceURL:  sourceURL,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Response is the result of a successful fetch. URL is the final URL after
// redirects have been resolved by the transport.
type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// ContentLength returns the body size in bytes.
func (r Response) ContentLength() int {
	return len(r.Body)
}

// ErrorKind classifies fetch failures for the retry taxonomy.
type ErrorKind string

// Fetch failure kinds.
const (
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindConnection ErrorKind = "connection_error"
	ErrKindHTTPStatus ErrorKind = "http_status"
	ErrKindOther      ErrorKind = "other"
)

// FetchError is the typed failure returned by Fetcher implementations.
type FetchError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == ErrKindHTTPStatus {
		return fmt.Sprintf("http_%d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt could plausibly succeed:
// timeouts, connection failures, and 5xx responses qualify; 4xx does not.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case ErrKindTimeout, ErrKindConnection:
		return true
	case ErrKindHTTPStatus:
		return e.StatusCode >= 500
	default:
		return false
	}
}

// Result is the record pushed to the ResultSink, one per processed URL.
// On failures Error and Retryable are set and Content is empty.
type Result struct {
	RunID         string    `json:"run_id,omitempty"`
	URL           string    `json:"url"`
	StatusCode    int       `json:"status,omitempty"`
	ContentLength int       `json:"content_length"`
	Depth         int       `json:"depth"`
	SourceURL     string    `json:"source_url,omitempty"`
	FetchedAt     time.Time `json:"timestamp"`
	Content       string    `json:"content,omitempty"`
	Error         string    `json:"error,omitempty"`
	Retryable     bool      `json:"retryable,omitempty"`
}

// Failed reports whether the record describes a failure outcome.
func (r Result) Failed() bool {
	return r.Error != ""
}
