package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/kennygrant/sanitize"
)

const (
	// MaxSlugLength bounds HTML file names.
	MaxSlugLength = 100
	// MaxImagePrefixLength bounds the article part of image file names.
	MaxImagePrefixLength = 50

	defaultImageExt = ".jpg"
)

var (
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	imageExt     = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)
)

// Slugify derives a lowercase, dash separated, length bounded name.
// It never returns an empty string.
func Slugify(s string, maxLen int) string {
	if slug := slugPart(s, maxLen); slug != "" {
		return slug
	}
	return "article"
}

// slugPart is Slugify without the fallback; it is empty when s has no
// ASCII letters or digits.
func slugPart(s string, maxLen int) string {
	s = strings.ToLower(sanitize.Accents(strings.TrimSpace(s)))
	s = strings.Trim(nonSlugChars.ReplaceAllString(s, "-"), "-")
	if maxLen > 0 && len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	return s
}

// ArticleSlug names an article's HTML file from its title, else its URL.
// Titles with no ASCII letters or digits (Cyrillic, CJK) use the URL too.
func ArticleSlug(title, rawURL string) string {
	if slug := slugPart(title, MaxSlugLength); slug != "" {
		return slug
	}
	return Slugify(urlSlugSource(rawURL), MaxSlugLength)
}

// ImageFileName names a downloaded image: {article-slug}-{image-slug}{ext}.
func ImageFileName(articleSlug, imageURL string) string {
	prefix := Slugify(articleSlug, MaxImagePrefixLength)
	base, ext := "", defaultImageExt
	if u, err := url.Parse(imageURL); err == nil {
		name := path.Base(u.Path)
		if e := strings.ToLower(path.Ext(name)); imageExt.MatchString(e) {
			ext = e
		}
		base = strings.TrimSuffix(name, path.Ext(name))
	}
	if base == "" || base == "." || base == "/" {
		base = "image"
	}
	return prefix + "-" + Slugify(base, MaxSlugLength) + ext
}

func urlSlugSource(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host + " " + u.Path + " " + u.RawQuery
}
