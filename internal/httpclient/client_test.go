package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(jar http.CookieJar) *Client {
	return New(Config{
		UserAgent:      "archiver-test/1.0",
		Timeout:        2 * time.Second,
		MaxAttempts:    4,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		ChunkBytes:     4,
		Jar:            jar,
	}, zap.NewNop())
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "archiver-test/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html>ok</html>")) //nolint:errcheck // test server
	}))
	defer srv.Close()

	resp, err := testClient(nil).Fetch(context.Background(), srv.URL+"/news?start=0")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "<html>ok</html>", string(resp.Body))
	require.EqualValues(t, 3, calls.Load())
}

func TestFetchExhaustsRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(nil).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrRetriesExhausted)
	require.EqualValues(t, 4, calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("gone")) //nolint:errcheck // test server
	}))
	defer srv.Close()

	resp, err := testClient(nil).Fetch(context.Background(), srv.URL)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Equal(t, "gone", string(resp.Body))
	require.EqualValues(t, 1, calls.Load())
}

func TestFetchRetriesConnectionFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := testClient(nil).Fetch(context.Background(), addr)
	require.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestFetchStopsOnCancel(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient(nil).Fetch(ctx, srv.URL)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRetriesExhausted)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFetchRejectsNonHTTP(t *testing.T) {
	t.Parallel()

	_, err := testClient(nil).Fetch(context.Background(), "ftp://example.com/file")
	require.Error(t, err)
}

func TestFetchDecodesCompressedBodies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		switch r.URL.Path {
		case "/gzip":
			zw := gzip.NewWriter(&buf)
			_, _ = zw.Write([]byte("gzipped body")) //nolint:errcheck // test server
			_ = zw.Close()                          //nolint:errcheck // test server
			w.Header().Set("Content-Encoding", "gzip")
		case "/br":
			bw := brotli.NewWriter(&buf)
			_, _ = bw.Write([]byte("brotli body")) //nolint:errcheck // test server
			_ = bw.Close()                         //nolint:errcheck // test server
			w.Header().Set("Content-Encoding", "br")
		}
		_, _ = w.Write(buf.Bytes()) //nolint:errcheck // test server
	}))
	defer srv.Close()

	client := testClient(nil)
	resp, err := client.Fetch(context.Background(), srv.URL+"/gzip")
	require.NoError(t, err)
	require.Equal(t, "gzipped body", string(resp.Body))

	resp, err = client.Fetch(context.Background(), srv.URL+"/br")
	require.NoError(t, err)
	require.Equal(t, "brotli body", string(resp.Body))
}

func TestStreamCopiesBody(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("img"), 100)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(payload) //nolint:errcheck // test server
	}))
	defer srv.Close()

	var out bytes.Buffer
	n, err := testClient(nil).Stream(context.Background(), srv.URL+"/a.jpg", &out)
	require.NoError(t, err)
	require.EqualValues(t, len(payload), n)
	require.Equal(t, payload, out.Bytes())
}

func TestStreamReportsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	var out bytes.Buffer
	_, err := testClient(nil).Stream(context.Background(), srv.URL+"/missing.png", &out)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Zero(t, out.Len())
}

func TestBackoffHonorsRetryAfterCap(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 80 * time.Millisecond}
	for attempt := 1; attempt <= 6; attempt++ {
		wait := p.Backoff(attempt, 0)
		require.LessOrEqual(t, wait, 80*time.Millisecond)
		require.GreaterOrEqual(t, wait, time.Duration(0))
	}
	require.Equal(t, 80*time.Millisecond, p.Backoff(1, 30*time.Second))
	require.Equal(t, 3*time.Second, parseRetryAfter(http.Header{"Retry-After": {"3"}}))
	require.Zero(t, parseRetryAfter(http.Header{"Retry-After": {"Wed, 21 Oct 2015 07:28:00 GMT"}}))
}

func TestShouldRetry(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{}
	for _, code := range []int{429, 500, 502, 503, 504} {
		require.True(t, p.ShouldRetryStatus(code), code)
	}
	for _, code := range []int{200, 301, 400, 403, 404, 501} {
		require.False(t, p.ShouldRetryStatus(code), code)
	}
	require.False(t, p.ShouldRetryError(nil))
	require.False(t, p.ShouldRetryError(context.Canceled))
	require.True(t, p.ShouldRetryError(errors.New("connection reset by peer")))
}

func TestLoadCookieJar(t *testing.T) {
	t.Parallel()

	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil {
			seen.Store(c.Value)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"name":"session","value":"abc123"}]`), 0o600))

	jar, err := LoadCookieJar(path, srv.URL, zap.NewNop())
	require.NoError(t, err)

	_, err = testClient(jar).Fetch(context.Background(), srv.URL+"/news")
	require.NoError(t, err)
	require.Equal(t, "abc123", seen.Load())
}

func TestLoadCookieJarKeepsCookiesForOtherDomains(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "cookies.json")
	body := `[
		{"name":"session","value":"abc123"},
		{"name":"cdn_token","value":"xyz","domain":".cdn.example.net"},
		{"name":"broken","value":"v","domain":"example.com."}
	]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	jar, err := LoadCookieJar(path, "https://news.example.com", zap.NewNop())
	require.NoError(t, err)

	cdn, err := url.Parse("https://img.cdn.example.net/a.jpg")
	require.NoError(t, err)
	require.Len(t, jar.Cookies(cdn), 1)
	require.Equal(t, "cdn_token", jar.Cookies(cdn)[0].Name)

	site, err := url.Parse("https://news.example.com/news")
	require.NoError(t, err)
	require.Len(t, jar.Cookies(site), 1)
	require.Equal(t, "session", jar.Cookies(site)[0].Name)
}

func TestSeedJarCountsRejectedCookies(t *testing.T) {
	t.Parallel()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	base, err := url.Parse("https://news.example.com")
	require.NoError(t, err)

	loaded, rejected := seedJar(jar, base, []*http.Cookie{
		{Name: "session", Value: "a", Path: "/"},
		{Name: "scoped", Value: "b", Path: "/news"},
		{Name: "broken", Value: "c", Domain: "example.com.", Path: "/"},
	})
	require.Equal(t, 2, loaded)
	require.Equal(t, 1, rejected)
}

func TestLoadCookieJarToleratesBadFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jar, err := LoadCookieJar(filepath.Join(dir, "absent.json"), "https://news.example.com", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, jar)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	jar, err = LoadCookieJar(bad, "https://news.example.com", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, jar)
}
