package crawler

import (
	"context"
	"fmt"
	"io"

	"github.com/JakeFAU/news-archiver/internal/httpclient"
	"github.com/JakeFAU/news-archiver/internal/policy/robots"
)

// GatedClient sends every request through the robots gate and the rate
// ceiling before handing it to the underlying HTTP client.
type GatedClient struct {
	client  HTTPClient
	robots  RobotsPolicy
	limiter RateLimiter
}

// NewGatedClient wraps client. A nil robots policy or limiter is skipped.
func NewGatedClient(client HTTPClient, robots RobotsPolicy, limiter RateLimiter) *GatedClient {
	return &GatedClient{client: client, robots: robots, limiter: limiter}
}

// Fetch implements Fetcher.
func (g *GatedClient) Fetch(ctx context.Context, rawURL string) (httpclient.Response, error) {
	if err := g.admit(ctx, rawURL); err != nil {
		return httpclient.Response{}, err
	}
	resp, err := g.client.Fetch(ctx, rawURL)
	if err != nil {
		return resp, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return resp, nil
}

// Stream implements Streamer.
func (g *GatedClient) Stream(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	if err := g.admit(ctx, rawURL); err != nil {
		return 0, err
	}
	n, err := g.client.Stream(ctx, rawURL, w)
	if err != nil {
		return n, fmt.Errorf("stream %s: %w", rawURL, err)
	}
	return n, nil
}

func (g *GatedClient) admit(ctx context.Context, rawURL string) error {
	if g.robots != nil && !g.robots.Allowed(ctx, rawURL) {
		return fmt.Errorf("fetch %s: %w", rawURL, robots.ErrBlocked)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("fetch %s: %w", rawURL, err)
		}
	}
	return nil
}
