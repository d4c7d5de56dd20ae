package robots

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-archiver/internal/httpclient"
)

type stubFetcher struct {
	calls atomic.Int32
	resp  httpclient.Response
	err   error
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string) (httpclient.Response, error) {
	s.calls.Add(1)
	resp := s.resp
	resp.URL = rawURL
	return resp, s.err
}

func TestGateEnforcesDirectives(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fmt.Fprintln(w, "User-agent: *\nDisallow: /private")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Config{MaxAttempts: 1}, zap.NewNop())
	gate := New(Config{Enabled: true, UserAgent: "archiver-test"}, client, zap.NewNop())

	require.True(t, gate.Allowed(context.Background(), srv.URL+"/news?start=3"))
	require.False(t, gate.Allowed(context.Background(), srv.URL+"/private/article"))
}

func TestGateDisabledAllowsEverything(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{resp: httpclient.Response{StatusCode: 200, Body: []byte("User-agent: *\nDisallow: /")}}
	gate := New(Config{Enabled: false}, fetcher, zap.NewNop())

	require.True(t, gate.Allowed(context.Background(), "https://news.example.com/a"))
	require.Zero(t, fetcher.calls.Load())
}

func TestGateFailsOpenWhenUnreachable(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: fmt.Errorf("GET robots: %w", httpclient.ErrRetriesExhausted)}
	gate := New(Config{Enabled: true, UserAgent: "archiver-test"}, fetcher, zap.NewNop())

	require.True(t, gate.Allowed(context.Background(), "https://news.example.com/a"))
}

func TestGateFailsOpenOnServerError(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		resp: httpclient.Response{StatusCode: http.StatusNotImplemented},
		err:  &httpclient.StatusError{StatusCode: http.StatusNotImplemented},
	}
	gate := New(Config{Enabled: true, UserAgent: "archiver-test"}, fetcher, zap.NewNop())

	require.True(t, gate.Allowed(context.Background(), "https://news.example.com/a"))
}

func TestGateMissingRobotsMeansAllowAll(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{
		resp: httpclient.Response{StatusCode: http.StatusNotFound},
		err:  &httpclient.StatusError{StatusCode: http.StatusNotFound},
	}
	gate := New(Config{Enabled: true, UserAgent: "archiver-test"}, fetcher, zap.NewNop())

	require.True(t, gate.Allowed(context.Background(), "https://news.example.com/anything"))
}

func TestGateRejectsUnparseableURL(t *testing.T) {
	t.Parallel()

	gate := New(Config{Enabled: true}, &stubFetcher{err: errors.New("unused")}, zap.NewNop())
	require.False(t, gate.Allowed(context.Background(), "::not a url"))
}

func TestGateCachesOnlyWithTTL(t *testing.T) {
	t.Parallel()

	body := []byte("User-agent: *\nDisallow: /private")
	uncached := &stubFetcher{resp: httpclient.Response{StatusCode: 200, Body: body}}
	gate := New(Config{Enabled: true, UserAgent: "archiver-test"}, uncached, zap.NewNop())
	gate.Allowed(context.Background(), "https://news.example.com/a")
	gate.Allowed(context.Background(), "https://news.example.com/b")
	require.EqualValues(t, 2, uncached.calls.Load())

	cached := &stubFetcher{resp: httpclient.Response{StatusCode: 200, Body: body}}
	gate = New(Config{Enabled: true, UserAgent: "archiver-test", CacheTTL: time.Minute}, cached, zap.NewNop())
	now := time.Unix(1_700_000_000, 0)
	gate.now = func() time.Time { return now }
	gate.Allowed(context.Background(), "https://news.example.com/a")
	require.False(t, gate.Allowed(context.Background(), "https://news.example.com/private/x"))
	require.EqualValues(t, 1, cached.calls.Load())

	now = now.Add(2 * time.Minute)
	gate.Allowed(context.Background(), "https://news.example.com/a")
	require.EqualValues(t, 2, cached.calls.Load())
}
