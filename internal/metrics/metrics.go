// Package metrics exposes Prometheus collectors for the archiver.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	listingPagesTotal          *prometheus.CounterVec
	articlesTotal              *prometheus.CounterVec
	imagesTotal                *prometheus.CounterVec
	bytesTotal                 *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	httpRetriesTotal           *prometheus.CounterVec
	robotsDecisionsTotal       *prometheus.CounterVec
	rateLimitDelaySeconds      prometheus.Histogram
	reextractTotal             *prometheus.CounterVec
	servedRequestsTotal        *prometheus.CounterVec
	servedDurationSeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_listing_pages_total",
				Help: "Listing pages probed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		articlesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_articles_total",
				Help: "Article visits, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		imagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_images_total",
				Help: "Image downloads, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		bytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_http_requests_total",
				Help: "Outbound HTTP requests, labeled by site and code.",
			},
			[]string{"site", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_http_request_duration_seconds",
				Help:    "Histogram of outbound HTTP request latencies, labeled by site.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"site"},
		)

		httpRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_http_retries_total",
				Help: "Outbound HTTP retries, labeled by site.",
			},
			[]string{"site"},
		)

		robotsDecisionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_robots_decisions_total",
				Help: "robots.txt decisions, labeled by decision (allowed, blocked, fail_open).",
			},
			[]string{"decision"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "archiver_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		reextractTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_reextract_total",
				Help: "Re-extraction results, labeled by outcome and strategy.",
			},
			[]string{"outcome", "strategy"},
		)

		servedRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archiver_api_requests_total",
				Help: "Requests served by the operator server, labeled by method, route, and code.",
			},
			[]string{"method", "route", "code"},
		)

		servedDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archiver_api_request_duration_seconds",
				Help:    "Histogram of operator server latencies, labeled by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveListingPage counts one probed listing page.
func ObserveListingPage(outcome string) {
	Init()
	listingPagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveArticle counts one article visit outcome.
func ObserveArticle(outcome string) {
	Init()
	articlesTotal.WithLabelValues(outcome).Inc()
}

// ObserveImage counts one image download outcome.
func ObserveImage(outcome string) {
	Init()
	imagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveHTTPRequest records one outbound request attempt.
func ObserveHTTPRequest(rawURL string, code int, bytesFetched int64, duration time.Duration) {
	Init()
	site := SanitizeSite(rawURL)
	httpRequestsTotal.WithLabelValues(site, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	if bytesFetched > 0 {
		bytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveHTTPRetry counts a retried request.
func ObserveHTTPRetry(rawURL string) {
	Init()
	httpRetriesTotal.WithLabelValues(SanitizeSite(rawURL)).Inc()
}

// ObserveRobotsDecision counts a robots gate decision.
func ObserveRobotsDecision(decision string) {
	Init()
	robotsDecisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveReextract counts one re-extraction result.
func ObserveReextract(outcome, strategy string) {
	Init()
	if strategy == "" {
		strategy = "none"
	}
	reextractTotal.WithLabelValues(outcome, strategy).Inc()
}

// ObserveServedRequest records one request handled by the operator server.
func ObserveServedRequest(method, route string, code int, duration time.Duration) {
	Init()
	servedRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	servedDurationSeconds.WithLabelValues(route).Observe(duration.Seconds())
}
