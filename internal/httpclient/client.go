// Package httpclient provides the single retrying HTTP client shared by the crawl.
package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/andybalholm/brotli"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-archiver/internal/metrics"
)

// ErrRetriesExhausted is returned once every attempt for a request failed transiently.
var ErrRetriesExhausted = errors.New("retries exhausted")

// StatusError reports a non-retryable HTTP error status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Config controls client identity, limits and retry behavior.
type Config struct {
	UserAgent      string
	Timeout        time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	MaxBodyBytes   int64
	ChunkBytes     int
	Jar            http.CookieJar
	// Transport overrides the default transport (tests).
	Transport http.RoundTripper
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues idempotent GETs with a fixed identity and bounded retries.
type Client struct {
	http      *http.Client
	userAgent string
	maxBody   int64
	chunk     int
	retry     RetryPolicy
	logger    *zap.Logger
}

// New builds a Client. It is safe for concurrent use.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ChunkBytes <= 0 {
		cfg.ChunkBytes = 8192
	}
	return &Client{
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Jar:       cfg.Jar,
			Transport: cfg.Transport,
		},
		userAgent: cfg.UserAgent,
		maxBody:   cfg.MaxBodyBytes,
		chunk:     cfg.ChunkBytes,
		retry: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BackoffInitial,
			MaxDelay:    cfg.BackoffMax,
		},
		logger: logger.Named("http"),
	}
}

// Fetch GETs rawURL and reads the decoded body. Non-retryable error statuses
// return the response together with a *StatusError.
func (c *Client) Fetch(ctx context.Context, rawURL string) (Response, error) {
	var out Response
	err := c.withRetries(ctx, rawURL, true, func(resp *http.Response) (int64, error) {
		body, err := c.readBody(resp)
		if err != nil {
			return 0, err
		}
		out = Response{
			URL:        finalURL(resp, rawURL),
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Body:       body,
		}
		return int64(len(body)), nil
	})
	if err != nil {
		return out, err
	}
	if out.StatusCode >= http.StatusBadRequest {
		return out, &StatusError{URL: rawURL, StatusCode: out.StatusCode}
	}
	return out, nil
}

// Stream GETs rawURL and copies the decoded body into w in fixed-size chunks.
// Only connecting and status handling are retried; a copy that already
// started writing is not repeated.
func (c *Client) Stream(ctx context.Context, rawURL string, w io.Writer) (int64, error) {
	var written int64
	err := c.withRetries(ctx, rawURL, false, func(resp *http.Response) (int64, error) {
		if resp.StatusCode >= http.StatusBadRequest {
			return 0, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		}
		reader, err := decompressReader(resp, resp.Body)
		if err != nil {
			return 0, fmt.Errorf("decode body: %w", err)
		}
		n, err := io.CopyBuffer(onlyWriter{w}, onlyReader{reader}, make([]byte, c.chunk))
		written = n
		if err != nil {
			return n, fmt.Errorf("copy body: %w", err)
		}
		return n, nil
	})
	return written, err
}

// withRetries runs one GET per attempt and hands the first non-transient
// response to handle. retryBody marks handle errors as retryable.
func (c *Client) withRetries(
	ctx context.Context,
	rawURL string,
	retryBody bool,
	handle func(*http.Response) (int64, error),
) error {
	if err := checkURL(rawURL); err != nil {
		return err
	}
	var lastErr error
	for attempt := 1; ; attempt++ {
		var retryAfter time.Duration
		start := time.Now()
		resp, err := c.do(ctx, rawURL)
		switch {
		case err != nil:
			if ctx.Err() != nil || !c.retry.ShouldRetryError(err) {
				return fmt.Errorf("GET %s: %w", rawURL, err)
			}
			lastErr = err
		case c.retry.ShouldRetryStatus(resp.StatusCode):
			retryAfter = parseRetryAfter(resp.Header)
			c.discard(resp)
			metrics.ObserveHTTPRequest(rawURL, resp.StatusCode, 0, time.Since(start))
			lastErr = &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
		default:
			n, herr := handle(resp)
			c.discard(resp)
			metrics.ObserveHTTPRequest(rawURL, resp.StatusCode, n, time.Since(start))
			if herr == nil {
				return nil
			}
			var statusErr *StatusError
			if !retryBody || errors.As(herr, &statusErr) || ctx.Err() != nil {
				return herr
			}
			lastErr = herr
		}

		if attempt >= c.retry.MaxAttempts {
			return fmt.Errorf("GET %s: %w after %d attempts: %w", rawURL, ErrRetriesExhausted, attempt, lastErr)
		}
		wait := c.retry.Backoff(attempt, retryAfter)
		c.logger.Debug("retrying request",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(lastErr),
		)
		metrics.ObserveHTTPRetry(rawURL)
		if err := pause(ctx, wait); err != nil {
			return fmt.Errorf("GET %s: %w", rawURL, err)
		}
	}
}

func (c *Client) do(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by the retry loop
	}
	return resp, nil
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	reader, err := decompressReader(resp, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if c.maxBody > 0 {
		reader = io.LimitReader(reader, c.maxBody)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (c *Client) discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck // drain for connection reuse
	if err := resp.Body.Close(); err != nil {
		c.logger.Debug("failed to close response body", zap.Error(err))
	}
}

// decompressReader undoes the Content-Encoding we advertised.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

func checkURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	return nil
}

func finalURL(resp *http.Response, fallback string) string {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	return fallback
}

// onlyReader and onlyWriter hide WriterTo and ReaderFrom so CopyBuffer
// always moves data through the fixed chunk buffer.
type onlyReader struct {
	io.Reader
}

type onlyWriter struct {
	io.Writer
}
