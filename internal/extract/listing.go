package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HeadlineLink applies the ordered link cascade to a listing page and returns
// the single article link it exposes. The first selector with a usable href
// wins. A link that resolves back to listingPath counts as no link.
func HeadlineLink(doc *goquery.Document, pageURL *url.URL, cascade []Selector, listingPath string) (string, bool) {
	for _, sel := range cascade {
		href, ok := firstHref(sel.Find(doc.Selection))
		if !ok {
			continue
		}
		resolved, err := pageURL.Parse(href)
		if err != nil {
			continue
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			continue
		}
		if samePath(resolved.Path, listingPath) {
			return "", false
		}
		resolved.Fragment = ""
		return resolved.String(), true
	}
	return "", false
}

func firstHref(matches *goquery.Selection) (string, bool) {
	var href string
	matches.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v := strings.TrimSpace(s.AttrOr("href", "")); v != "" && !strings.HasPrefix(v, "#") {
			href = v
			return false
		}
		return true
	})
	return href, href != ""
}

func samePath(a, b string) bool {
	return strings.TrimRight(a, "/") == strings.TrimRight(b, "/")
}
