// Package robots decides whether a URL may be fetched under the site's robots.txt.
package robots

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-archiver/internal/httpclient"
	"github.com/JakeFAU/news-archiver/internal/metrics"
)

// ErrBlocked marks a request refused by robots.txt. It is never sent.
var ErrBlocked = errors.New("blocked by robots.txt")

// Fetcher retrieves robots documents; the shared HTTP client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (httpclient.Response, error)
}

// Config controls the gate.
type Config struct {
	Enabled   bool
	UserAgent string
	// CacheTTL keeps a parsed document per host; zero refetches on every call.
	CacheTTL time.Duration
}

// Gate enforces robots.txt directives per host and fails open when the
// document cannot be retrieved.
type Gate struct {
	fetcher   Fetcher
	enabled   bool
	userAgent string
	ttl       time.Duration
	cache     sync.Map
	now       func() time.Time
	logger    *zap.Logger
}

type cachedRobots struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// New builds a Gate that loads robots.txt through fetcher.
func New(cfg Config, fetcher Fetcher, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		fetcher:   fetcher,
		enabled:   cfg.Enabled,
		userAgent: cfg.UserAgent,
		ttl:       cfg.CacheTTL,
		now:       time.Now,
		logger:    logger.Named("robots"),
	}
}

// Allowed reports whether rawURL may be fetched.
func (g *Gate) Allowed(ctx context.Context, rawURL string) bool {
	if g == nil || !g.enabled {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	data, ok := g.load(ctx, parsed)
	if !ok {
		metrics.ObserveRobotsDecision("fail_open")
		return true
	}
	group := data.FindGroup(g.userAgent)
	if group == nil || group.Test(parsed.RequestURI()) {
		metrics.ObserveRobotsDecision("allowed")
		return true
	}
	metrics.ObserveRobotsDecision("blocked")
	g.logger.Info("robots.txt disallows url", zap.String("url", rawURL))
	return false
}

// load returns the parsed document, or false when the gate must fail open.
func (g *Gate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, bool) {
	hostKey := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	if g.ttl > 0 {
		if v, ok := g.cache.Load(hostKey); ok {
			if entry, isEntry := v.(cachedRobots); isEntry && g.now().Sub(entry.fetchedAt) < g.ttl {
				return entry.data, true
			}
		}
	}

	robotsURL := hostKey + "/robots.txt"
	resp, err := g.fetcher.Fetch(ctx, robotsURL)
	if err != nil && !isClientError(err) {
		g.logger.Warn("robots fetch failed; allowing access", zap.String("url", robotsURL), zap.Error(err))
		return nil, false
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, resp.Body)
	if err != nil {
		g.logger.Warn("robots parse failed; allowing access", zap.String("url", robotsURL), zap.Error(err))
		return nil, false
	}
	if g.ttl > 0 {
		g.cache.Store(hostKey, cachedRobots{data: data, fetchedAt: g.now()})
	}
	return data, true
}

// isClientError is true for 4xx responses, which mean "no policy".
func isClientError(err error) bool {
	var statusErr *httpclient.StatusError
	return errors.As(err, &statusErr) &&
		statusErr.StatusCode >= http.StatusBadRequest &&
		statusErr.StatusCode < http.StatusInternalServerError
}
