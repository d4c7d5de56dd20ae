package crawler

import (
	"context"
	"io"
	"time"

	"github.com/JakeFAU/news-archiver/internal/httpclient"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (httpclient.Response, error)
}

// Streamer copies a response body into w without buffering it whole.
type Streamer interface {
	Stream(ctx context.Context, rawURL string, w io.Writer) (int64, error)
}

// HTTPClient is the transport used by the gated fetcher.
type HTTPClient interface {
	Fetcher
	Streamer
}

// RobotsPolicy reports whether robots.txt permits a URL.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RateLimiter blocks until the next request may be sent.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// FileStore persists raw HTML and image files.
type FileStore interface {
	SaveHTML(slug string, body []byte) (string, error)
	ImagePath(name string) (string, error)
	Exists(path string) bool
	SaveImage(name string, fill func(io.Writer) error) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock supplies timestamps for stored rows.
type Clock interface {
	Now() time.Time
}
