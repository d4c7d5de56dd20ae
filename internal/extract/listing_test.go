package extract

import (
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func mustSelectors(t *testing.T, raws ...string) []Selector {
	t.Helper()
	sels, err := CompileSelectors(raws)
	require.NoError(t, err)
	return sels
}

func mustDoc(t *testing.T, body string) *goquery.Document {
	t.Helper()
	doc, err := ParseDocument([]byte(body))
	require.NoError(t, err)
	return doc
}

func TestHeadlineLinkFallbackOrder(t *testing.T) {
	t.Parallel()

	page, _ := url.Parse("https://news.example.com/news?start=4")
	cascade := mustSelectors(t, "h2.headline a", "article h2 a", "xpath://div[@class='teaser']//a")

	testCases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "primary wins over fallbacks",
			body: `<article><h2><a href="/b">B</a></h2></article><h2 class="headline"><a href="/a">A</a></h2>`,
			want: "https://news.example.com/a",
		},
		{
			name: "first fallback used when primary misses",
			body: `<article><h2><a href="/b#top">B</a></h2></article><div class="teaser"><a href="/c">C</a></div>`,
			want: "https://news.example.com/b",
		},
		{
			name: "xpath fallback",
			body: `<div class="teaser"><span><a href="https://other.example.com/c">C</a></span></div>`,
			want: "https://other.example.com/c",
		},
		{
			name: "match without href falls through",
			body: `<h2 class="headline"><a>no link</a></h2><article><h2><a href="/d">D</a></h2></article>`,
			want: "https://news.example.com/d",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := HeadlineLink(mustDoc(t, tc.body), page, cascade, "/news")
			require.True(t, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestHeadlineLinkNoMatch(t *testing.T) {
	t.Parallel()

	page, _ := url.Parse("https://news.example.com/news?start=9")
	_, ok := HeadlineLink(mustDoc(t, `<p>nothing here</p>`), page, mustSelectors(t, "h2 a"), "/news")
	require.False(t, ok)
}

func TestHeadlineLinkSelfReferenceCountsAsNone(t *testing.T) {
	t.Parallel()

	page, _ := url.Parse("https://news.example.com/news?start=9")
	body := `<h2 class="headline"><a href="/news?start=0">Back to start</a></h2><article><h2><a href="/x">X</a></h2></article>`
	_, ok := HeadlineLink(mustDoc(t, body), page, mustSelectors(t, "h2.headline a", "article h2 a"), "/news")
	require.False(t, ok)
}
