// Package extract turns raw HTML into headline links, article fields and clean body text.
//
// Selectors are CSS by default; a selector prefixed with "xpath:" is
// evaluated as an XPath expression instead.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

const xpathPrefix = "xpath:"

// Selector is a compiled CSS or XPath selector.
type Selector struct {
	raw   string
	css   cascadia.Selector
	xpath *xpath.Expr
}

// CompileSelector parses raw as CSS, or as XPath when it carries the xpath: prefix.
func CompileSelector(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Selector{}, fmt.Errorf("empty selector")
	}
	if expr, ok := strings.CutPrefix(raw, xpathPrefix); ok {
		compiled, err := xpath.Compile(strings.TrimSpace(expr))
		if err != nil {
			return Selector{}, fmt.Errorf("compile xpath %q: %w", expr, err)
		}
		return Selector{raw: raw, xpath: compiled}, nil
	}
	sel, err := cascadia.Compile(raw)
	if err != nil {
		return Selector{}, fmt.Errorf("compile css %q: %w", raw, err)
	}
	return Selector{raw: raw, css: sel}, nil
}

// CompileSelectors compiles an ordered list, failing on the first bad entry.
func CompileSelectors(raws []string) ([]Selector, error) {
	out := make([]Selector, 0, len(raws))
	for _, raw := range raws {
		sel, err := CompileSelector(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

// String returns the selector source.
func (s Selector) String() string {
	return s.raw
}

// Find returns the matches of s beneath scope, in document order.
func (s Selector) Find(scope *goquery.Selection) *goquery.Selection {
	if s.xpath == nil {
		if s.css == nil {
			return scope.FindNodes()
		}
		return scope.FindMatcher(s.css)
	}
	var nodes []*html.Node
	for _, root := range scope.Nodes {
		nodes = append(nodes, htmlquery.QuerySelectorAll(root, s.xpath)...)
	}
	return scope.FindNodes(nodes...)
}

// ParseDocument parses raw HTML into a goquery document.
func ParseDocument(raw []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// nodeText returns the whitespace-collapsed text of a selection.
func nodeText(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}
