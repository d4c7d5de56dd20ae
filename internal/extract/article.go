package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FieldRule is one step of a field cascade. An empty Attr reads element text.
type FieldRule struct {
	Selector Selector
	Attr     string
}

// RuleSpec is the uncompiled form of a FieldRule.
type RuleSpec struct {
	Selector string
	Attr     string
}

// ArticleRules holds the compiled cascades for every article field.
type ArticleRules struct {
	Title         []FieldRule
	PublishedAt   []FieldRule
	Author        []FieldRule
	BodyContainer Selector
	Paragraph     Selector
	Image         Selector
}

// ArticleRulesConfig is the uncompiled form of ArticleRules.
type ArticleRulesConfig struct {
	Title         []RuleSpec
	PublishedAt   []RuleSpec
	Author        []RuleSpec
	BodyContainer string
	Paragraph     string
	Image         string
}

// Article is the structured result of one article page.
type Article struct {
	Title       string
	PublishedAt string
	Author      *string
	Text        string
	// Images are absolute http(s) URLs in document order, deduplicated.
	Images []string
}

// CompileArticleRules compiles every selector in cfg.
func CompileArticleRules(cfg ArticleRulesConfig) (ArticleRules, error) {
	var (
		rules ArticleRules
		err   error
	)
	if rules.Title, err = compileRules("title", cfg.Title); err != nil {
		return ArticleRules{}, err
	}
	if rules.PublishedAt, err = compileRules("published_at", cfg.PublishedAt); err != nil {
		return ArticleRules{}, err
	}
	if rules.Author, err = compileRules("author", cfg.Author); err != nil {
		return ArticleRules{}, err
	}
	if rules.BodyContainer, err = CompileSelector(cfg.BodyContainer); err != nil {
		return ArticleRules{}, fmt.Errorf("body container: %w", err)
	}
	if rules.Paragraph, err = CompileSelector(cfg.Paragraph); err != nil {
		return ArticleRules{}, fmt.Errorf("paragraph: %w", err)
	}
	if rules.Image, err = CompileSelector(cfg.Image); err != nil {
		return ArticleRules{}, fmt.Errorf("image: %w", err)
	}
	return rules, nil
}

func compileRules(field string, specs []RuleSpec) ([]FieldRule, error) {
	out := make([]FieldRule, 0, len(specs))
	for _, spec := range specs {
		sel, err := CompileSelector(spec.Selector)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		out = append(out, FieldRule{Selector: sel, Attr: spec.Attr})
	}
	return out, nil
}

// Extract pulls every field out of doc. Misses leave fields empty.
func (r ArticleRules) Extract(doc *goquery.Document, pageURL *url.URL) Article {
	art := Article{
		Title:       firstValue(doc.Selection, r.Title),
		PublishedAt: firstValue(doc.Selection, r.PublishedAt),
	}
	if author := firstValue(doc.Selection, r.Author); author != "" {
		art.Author = &author
	}

	container := r.BodyContainer.Find(doc.Selection).First()
	if container.Length() == 0 {
		container = doc.Selection
	}
	art.Text = strings.Join(paragraphTexts(container, r.Paragraph), "\n\n")
	art.Images = imageURLs(container, r.Image, pageURL)
	return art
}

// firstValue walks the cascade; the first non-empty value wins.
func firstValue(scope *goquery.Selection, rules []FieldRule) string {
	for _, rule := range rules {
		var value string
		rule.Selector.Find(scope).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if rule.Attr != "" {
				value = strings.TrimSpace(s.AttrOr(rule.Attr, ""))
			} else {
				value = nodeText(s)
			}
			return value == ""
		})
		if value != "" {
			return value
		}
	}
	return ""
}

func paragraphTexts(scope *goquery.Selection, paragraph Selector) []string {
	var out []string
	paragraph.Find(scope).Each(func(_ int, s *goquery.Selection) {
		if t := nodeText(s); t != "" {
			out = append(out, t)
		}
	})
	return out
}

func imageURLs(scope *goquery.Selection, image Selector, pageURL *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string
	image.Find(scope).Each(func(_ int, s *goquery.Selection) {
		resolved, ok := ResolveImageURL(pageURL, s.AttrOr("src", ""))
		if !ok {
			return
		}
		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}
		out = append(out, resolved)
	})
	return out
}

// ResolveImageURL turns an image src into an absolute http(s) URL. Protocol
// relative sources take the page's scheme; data: URIs are rejected.
func ResolveImageURL(pageURL *url.URL, src string) (string, bool) {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(strings.ToLower(src), "data:") {
		return "", false
	}
	if strings.HasPrefix(src, "//") {
		scheme := "https"
		if pageURL != nil && pageURL.Scheme != "" {
			scheme = pageURL.Scheme
		}
		src = scheme + ":" + src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", false
	}
	if pageURL != nil {
		ref = pageURL.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	return ref.String(), true
}
