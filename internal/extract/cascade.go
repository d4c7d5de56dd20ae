package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/markusmobius/go-trafilatura"
)

// Strategy names reported with every cascade result.
const (
	StrategyBoilerplate = "boilerplate"
	StrategyContainer   = "container"
	StrategyParagraphs  = "paragraphs"
)

// noiseSelector lists elements that never carry article prose.
const noiseSelector = "script, style, noscript, header, footer, nav, aside, form, iframe"

// Strategy is one way of deriving body text from raw HTML. Extract returns
// raw text; the cascade cleans it before Accept sees it.
type Strategy struct {
	Name    string
	Extract func(raw []byte, pageURL *url.URL) (string, error)
	Accept  func(text string) bool
}

// Result is the accepted output of a cascade run.
type Result struct {
	Text     string
	Strategy string
}

// Cascade applies strategies in order and keeps the first accepted output.
type Cascade struct {
	strategies []Strategy
}

// CascadeConfig selects and tunes the built-in strategies.
type CascadeConfig struct {
	Engine         string
	MinChars       int
	Containers     []string
	NoiseSelectors []string
}

// NewCascade builds a cascade over an explicit strategy list.
func NewCascade(strategies ...Strategy) *Cascade {
	return &Cascade{strategies: strategies}
}

// DefaultCascade builds boilerplate removal, then container paragraphs,
// then whole-document paragraphs.
func DefaultCascade(cfg CascadeConfig) (*Cascade, error) {
	containers, err := CompileSelectors(cfg.Containers)
	if err != nil {
		return nil, fmt.Errorf("containers: %w", err)
	}
	noise := noiseSelector
	if len(cfg.NoiseSelectors) > 0 {
		noise += ", " + strings.Join(cfg.NoiseSelectors, ", ")
	}
	if _, err := CompileSelector(noise); err != nil {
		return nil, fmt.Errorf("noise selectors: %w", err)
	}

	var boilerplate func([]byte, *url.URL) (string, error)
	switch cfg.Engine {
	case "", "trafilatura":
		boilerplate = trafilaturaText
	case "readability":
		boilerplate = readabilityText
	default:
		return nil, fmt.Errorf("unknown extraction engine %q", cfg.Engine)
	}
	minChars := cfg.MinChars

	return NewCascade(
		Strategy{
			Name:    StrategyBoilerplate,
			Extract: boilerplate,
			Accept:  func(text string) bool { return len([]rune(text)) >= minChars && text != "" },
		},
		Strategy{
			Name: StrategyContainer,
			Extract: func(raw []byte, _ *url.URL) (string, error) {
				return containerText(raw, containers, noise)
			},
			Accept: nonEmpty,
		},
		Strategy{
			Name: StrategyParagraphs,
			Extract: func(raw []byte, _ *url.URL) (string, error) {
				return documentParagraphs(raw, noise)
			},
			Accept: nonEmpty,
		},
	), nil
}

// Extract returns the first accepted strategy output. An empty Result means
// no strategy produced usable text.
func (c *Cascade) Extract(raw []byte, pageURL *url.URL) Result {
	for _, s := range c.strategies {
		text, err := s.Extract(raw, pageURL)
		if err != nil {
			continue
		}
		text = CleanText(text)
		if s.Accept(text) {
			return Result{Text: text, Strategy: s.Name}
		}
	}
	return Result{}
}

func nonEmpty(text string) bool {
	return strings.TrimSpace(text) != ""
}

func trafilaturaText(raw []byte, pageURL *url.URL) (string, error) {
	opts := trafilatura.Options{OriginalURL: pageURL}
	result, err := trafilatura.Extract(bytes.NewReader(raw), opts)
	if err != nil {
		return "", fmt.Errorf("trafilatura: %w", err)
	}
	if result == nil {
		return "", nil
	}
	return result.ContentText, nil
}

func readabilityText(raw []byte, pageURL *url.URL) (string, error) {
	if pageURL == nil {
		pageURL = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	}
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return article.TextContent, nil
}

// containerText takes the first container any selector matches and joins its paragraphs.
func containerText(raw []byte, containers []Selector, noise string) (string, error) {
	doc, err := denoisedDocument(raw, noise)
	if err != nil {
		return "", err
	}
	paragraph, _ := CompileSelector("p") //nolint:errcheck // constant selector
	for _, sel := range containers {
		container := sel.Find(doc.Selection).First()
		if container.Length() == 0 {
			continue
		}
		return strings.Join(paragraphTexts(container, paragraph), "\n\n"), nil
	}
	return "", nil
}

// documentParagraphs joins every paragraph in the document, falling back to
// the meta description when there are none.
func documentParagraphs(raw []byte, noise string) (string, error) {
	doc, err := denoisedDocument(raw, noise)
	if err != nil {
		return "", err
	}
	paragraph, _ := CompileSelector("p") //nolint:errcheck // constant selector
	if paras := paragraphTexts(doc.Selection, paragraph); len(paras) > 0 {
		return strings.Join(paras, "\n\n"), nil
	}
	for _, sel := range []string{"meta[name='description']", "meta[property='og:description']"} {
		if v := strings.TrimSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v, nil
		}
	}
	return nodeText(doc.Find("title").First()), nil
}

func denoisedDocument(raw []byte, noise string) (*goquery.Document, error) {
	doc, err := ParseDocument(raw)
	if err != nil {
		return nil, err
	}
	doc.Find(noise).Remove()
	return doc, nil
}
