package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves a URL and returns the response with redirects already
// resolved, or a *FetchError describing the failure. Implementations must be
// safe for concurrent use by multiple workers.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// ResultSink receives one record per task outcome. Implementations must be
// safe for concurrent use or serialize internally.
type ResultSink interface {
	Write(ctx context.Context, result Result) error
	Close() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
