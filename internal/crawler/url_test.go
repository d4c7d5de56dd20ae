package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"HTTPS://News.Example.com:443/a?b=2&a=1#top", "https://news.example.com/a?a=1&b=2"},
		{"http://news.example.com:80/story?utm_source=x&id=9", "http://news.example.com/story?id=9"},
		{"https://news.example.com/story?UTM_Campaign=y", "https://news.example.com/story"},
		{"https://news.example.com:8443/story", "https://news.example.com:8443/story"},
	}
	for _, tc := range cases {
		got, err := NormalizeURL(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := NormalizeURL("http://[::1")
	require.Error(t, err)
}

func TestDedupeKey(t *testing.T) {
	t.Parallel()

	raw := "https://News.example.com/a#frag"
	require.Equal(t, raw, dedupeKey(raw, false))
	require.Equal(t, "https://news.example.com/a", dedupeKey(raw, true))
	require.Equal(t, "http://[::1", dedupeKey("http://[::1", true))
}
