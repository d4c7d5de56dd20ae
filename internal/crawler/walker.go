package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-archiver/internal/extract"
	"github.com/JakeFAU/news-archiver/internal/metrics"
)

// ArticleVisitor handles one discovered article URL.
type ArticleVisitor interface {
	Visit(ctx context.Context, rawURL string) Outcome
}

// Walker drives the offset state machine over the listing pages.
type Walker struct {
	cfg      Config
	fetcher  Fetcher
	articles ArticleVisitor
	ids      IDGenerator
	pauser   pauseController
	logger   *zap.Logger
}

// NewWalker validates cfg and builds a Walker. fetcher should be gated.
func NewWalker(cfg Config, fetcher Fetcher, articles ArticleVisitor, ids IDGenerator, logger *zap.Logger) (*Walker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if fetcher == nil || articles == nil || ids == nil {
		return nil, fmt.Errorf("fetcher, article visitor and id generator are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Walker{
		cfg:      cfg,
		fetcher:  fetcher,
		articles: articles,
		ids:      ids,
		pauser:   &timerPauseController{},
		logger:   logger.Named("walker"),
	}, nil
}

// Run probes listing offsets from StartFrom until a page fails, yields no
// headline link, or MaxStart has been processed. The article pool is drained
// before Run returns.
func (w *Walker) Run(ctx context.Context) (RunSummary, error) {
	runID, err := w.ids.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := RunSummary{RunID: runID, LastOffset: w.cfg.StartFrom, HaltReason: HaltRangeExhausted}
	logger := w.logger.With(zap.String("run_id", runID))
	logger.Info("crawl starting",
		zap.Int("start_from", w.cfg.StartFrom),
		zap.Int("max_start", w.cfg.MaxStart),
		zap.Int("article_workers", w.cfg.ArticleWorkers),
	)

	var (
		mu   sync.Mutex
		pool errgroup.Group
	)
	pooled := w.cfg.ArticleWorkers > 1
	if pooled {
		pool.SetLimit(w.cfg.ArticleWorkers)
	}
	dispatch := func(link string) {
		if !pooled {
			summary.record(w.articles.Visit(ctx, link))
			return
		}
		pool.Go(func() error {
			outcome := w.articles.Visit(ctx, link)
			mu.Lock()
			summary.record(outcome)
			mu.Unlock()
			return nil
		})
	}

	for offset := w.cfg.StartFrom; offset <= w.cfg.MaxStart; offset++ {
		if ctx.Err() != nil {
			summary.HaltReason = HaltCanceled
			break
		}
		summary.PagesProbed++
		summary.LastOffset = offset

		link, reason := w.probe(ctx, offset, logger)
		if reason != "" {
			summary.HaltReason = reason
			break
		}
		summary.LinksFound++
		summary.AnyLinks = true
		dispatch(link)

		w.pauser.Pause(ctx, w.cfg.ArticleDelay)
		if offset < w.cfg.MaxStart {
			w.pauser.Pause(ctx, w.cfg.ListingDelay)
		}
	}

	_ = pool.Wait() //nolint:errcheck // visits report outcomes, not errors

	logger.Info("crawl finished",
		zap.String("halt_reason", string(summary.HaltReason)),
		zap.Int("last_offset", summary.LastOffset),
		zap.Int("pages_probed", summary.PagesProbed),
		zap.Int("saved", summary.Saved),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

// probe fetches one listing page and returns its headline link, or the
// reason the walk must halt.
func (w *Walker) probe(ctx context.Context, offset int, logger *zap.Logger) (string, HaltReason) {
	pageURL := w.cfg.ListingURL(offset)
	logger = logger.With(zap.Int("offset", offset), zap.String("listing_url", pageURL))

	resp, err := w.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if ctx.Err() != nil {
			return "", HaltCanceled
		}
		metrics.ObserveListingPage("fetch_failed")
		logger.Warn("listing fetch failed; halting", zap.Error(err))
		return "", HaltFetchFailed
	}

	base, err := url.Parse(resp.URL)
	if err != nil || resp.URL == "" {
		base, _ = url.Parse(pageURL) //nolint:errcheck // built from a validated base url
	}
	doc, err := extract.ParseDocument(resp.Body)
	if err != nil {
		metrics.ObserveListingPage("no_links")
		logger.Warn("listing parse failed; halting", zap.Error(err))
		return "", HaltNoLinks
	}
	link, ok := extract.HeadlineLink(doc, base, w.cfg.ListingSelectors, w.cfg.ListingPath)
	if !ok {
		metrics.ObserveListingPage("no_links")
		logger.Info("no headline link on listing page; halting")
		return "", HaltNoLinks
	}
	metrics.ObserveListingPage("link")
	logger.Info("headline found", zap.String("url", link))
	return link, ""
}
