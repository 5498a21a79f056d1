package crawler

import (
	"context"
	"io"
	"net/http"
	"time"
)

// BlobStore writes downloaded media and returns its location.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
	// Stat returns the stored location and size, or ErrNotFound when the object is absent.
	Stat(ctx context.Context, path string) (string, int64, error)
}

// Publisher pushes output rows to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher downloads a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// RowSink receives the final output rows of a run.
type RowSink interface {
	Name() string
	WriteRows(ctx context.Context, runID string, rows []OutputRow) (string, error)
}

// Hasher computes digests used for deterministic filenames.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL      string
	Headers  http.Header
	MaxBytes int64
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
