package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-archiver/internal/clock/system"
	"github.com/JakeFAU/news-archiver/internal/extract"
	"github.com/JakeFAU/news-archiver/internal/metrics"
	"github.com/JakeFAU/news-archiver/internal/policy/robots"
	"github.com/JakeFAU/news-archiver/internal/store"
)

// ArticleOptions configures an ArticleFetcher.
type ArticleOptions struct {
	Rules          extract.ArticleRules
	NormalizeURLs  bool
	DownloadImages bool
	// Clock stamps saved rows; nil means the system clock.
	Clock Clock
}

// ArticleFetcher fetches one article, stores its HTML and images, and
// inserts its metadata row.
type ArticleFetcher struct {
	client   HTTPClient
	store    store.ArticleStore
	files    FileStore
	opts     ArticleOptions
	inflight visitTracker
	clock    Clock
	logger   *zap.Logger
}

// NewArticleFetcher builds an ArticleFetcher. client should be gated.
func NewArticleFetcher(
	opts ArticleOptions,
	client HTTPClient,
	st store.ArticleStore,
	files FileStore,
	logger *zap.Logger,
) *ArticleFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = system.New()
	}
	return &ArticleFetcher{
		client:   client,
		store:    st,
		files:    files,
		opts:     opts,
		inflight: newConcurrentVisitTracker(),
		clock:    clk,
		logger:   logger.Named("article"),
	}
}

// Visit processes rawURL and reports what happened. Failures are logged and
// never abort the caller's walk.
func (f *ArticleFetcher) Visit(ctx context.Context, rawURL string) Outcome {
	outcome := f.visit(ctx, rawURL)
	metrics.ObserveArticle(string(outcome))
	return outcome
}

func (f *ArticleFetcher) visit(ctx context.Context, rawURL string) Outcome {
	key := dedupeKey(rawURL, f.opts.NormalizeURLs)
	logger := f.logger.With(zap.String("url", key))

	if !f.inflight.MarkIfNew(key) {
		logger.Debug("article already in flight")
		return OutcomeSkipped
	}
	defer f.inflight.Release(key)

	exists, err := f.store.Exists(ctx, key)
	if err != nil {
		logger.Error("article lookup failed", zap.Error(err))
		return OutcomeFailed
	}
	if exists {
		logger.Info("article already stored; skipping")
		return OutcomeSkipped
	}

	resp, err := f.client.Fetch(ctx, rawURL)
	if err != nil {
		if errors.Is(err, robots.ErrBlocked) {
			logger.Warn("article blocked by robots.txt")
		} else {
			logger.Warn("article fetch failed", zap.Error(err))
		}
		return OutcomeFailed
	}

	pageURL, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		pageURL, _ = url.Parse(rawURL) //nolint:errcheck // rawURL was fetched, so it parses
	}
	doc, err := extract.ParseDocument(resp.Body)
	if err != nil {
		logger.Warn("article parse failed", zap.Error(err))
		return OutcomeFailed
	}
	art := f.opts.Rules.Extract(doc, pageURL)

	slug := extract.ArticleSlug(art.Title, key)
	htmlPath, err := f.files.SaveHTML(slug, resp.Body)
	if err != nil {
		logger.Error("saving html failed", zap.Error(err))
		return OutcomeFailed
	}

	if f.opts.DownloadImages {
		for _, imageURL := range art.Images {
			f.saveImage(ctx, slug, imageURL)
		}
	}

	inserted, err := f.store.Insert(ctx, store.ArticleRecord{
		URL:         key,
		Title:       art.Title,
		PublishedAt: art.PublishedAt,
		Author:      art.Author,
		Text:        art.Text,
		HTMLPath:    htmlPath,
		SavedAt:     f.clock.Now(),
	})
	if err != nil {
		logger.Error("article insert failed", zap.Error(err))
		return OutcomeFailed
	}
	if !inserted {
		logger.Info("article inserted concurrently; keeping existing row")
		return OutcomeDuplicate
	}
	logger.Info("article saved",
		zap.String("title", art.Title),
		zap.String("html_path", htmlPath),
		zap.Int("text_len", len(art.Text)),
		zap.Int("images", len(art.Images)),
	)
	return OutcomeSaved
}

// saveImage downloads one image unless it already exists. Errors are logged.
func (f *ArticleFetcher) saveImage(ctx context.Context, articleSlug, imageURL string) {
	name := extract.ImageFileName(articleSlug, imageURL)
	logger := f.logger.With(zap.String("image_url", imageURL))

	dest, err := f.files.ImagePath(name)
	if err != nil {
		logger.Warn("invalid image path", zap.String("name", name), zap.Error(err))
		metrics.ObserveImage("failed")
		return
	}
	if f.files.Exists(dest) {
		metrics.ObserveImage("exists")
		return
	}
	_, err = f.files.SaveImage(name, func(w io.Writer) error {
		if _, err := f.client.Stream(ctx, imageURL, w); err != nil {
			return fmt.Errorf("download image: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Warn("image download failed", zap.Error(err))
		metrics.ObserveImage("failed")
		return
	}
	metrics.ObserveImage("saved")
}
