// Package reextract re-derives article text from stored HTML through the
// extraction cascade. It performs no network I/O.
package reextract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/news-archiver/internal/extract"
	"github.com/JakeFAU/news-archiver/internal/metrics"
	"github.com/JakeFAU/news-archiver/internal/store"
)

// Extractor turns raw HTML into cleaned text; *extract.Cascade satisfies it.
type Extractor interface {
	Extract(raw []byte, pageURL *url.URL) extract.Result
}

// Progress receives per-record ticks. *progressbar.ProgressBar satisfies it.
type Progress interface {
	ChangeMax(newMax int)
	Add(num int) error
}

// Options select which records a run touches.
type Options struct {
	// Force reprocesses records that already have text and overwrites it.
	Force bool
	// ID restricts the run to one record when > 0.
	ID int64
	// Limit caps the number of records when > 0.
	Limit    int
	Progress Progress
}

// Report counts what a run did.
type Report struct {
	Selected  int
	Updated   int
	Unchanged int
	Missing   int
	Empty     int
	Failed    int
}

// Runner drives the re-extraction pass.
type Runner struct {
	store   store.ArticleStore
	cascade Extractor
	workers int
	logger  *zap.Logger
}

// New builds a Runner. workers <= 0 means one.
func New(st store.ArticleStore, cascade Extractor, workers int, logger *zap.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{store: st, cascade: cascade, workers: workers, logger: logger.Named("reextract")}
}

type outcome int

const (
	outcomeUpdated outcome = iota
	outcomeUnchanged
	outcomeMissing
	outcomeEmpty
	outcomeFailed
)

// Run selects records and rewrites their text. Records are independent; a
// failure on one is logged and the run moves on.
func (r *Runner) Run(ctx context.Context, opts Options) (Report, error) {
	recs, err := r.store.Select(ctx, store.Selection{Force: opts.Force, ID: opts.ID, Limit: opts.Limit})
	if err != nil {
		return Report{}, fmt.Errorf("select articles: %w", err)
	}
	report := Report{Selected: len(recs)}
	total := len(recs)
	r.logger.Info("reextract starting", zap.Int("selected", total), zap.Bool("force", opts.Force))
	if total == 0 {
		r.explainEmptySelection(ctx, opts)
		return report, nil
	}
	if opts.Progress != nil {
		opts.Progress.ChangeMax(total)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.workers)
	for i, rec := range recs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			result := r.process(ctx, i+1, total, rec, opts.Force)
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case outcomeUpdated:
				report.Updated++
			case outcomeUnchanged:
				report.Unchanged++
			case outcomeMissing:
				report.Missing++
			case outcomeEmpty:
				report.Empty++
			case outcomeFailed:
				report.Failed++
			}
			if opts.Progress != nil {
				_ = opts.Progress.Add(1) //nolint:errcheck // progress output is best effort
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // per-record errors are counted, not returned

	r.logger.Info("reextract finished",
		zap.Int("selected", report.Selected),
		zap.Int("updated", report.Updated),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("missing", report.Missing),
		zap.Int("empty", report.Empty),
		zap.Int("failed", report.Failed),
	)
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("reextract interrupted: %w", err)
	}
	return report, nil
}

func (r *Runner) process(ctx context.Context, i, total int, rec store.ArticleRecord, force bool) outcome {
	logger := r.logger.With(zap.Int64("id", rec.ID), zap.String("url", rec.URL))
	logger.Info(fmt.Sprintf("[%d/%d] id=%d url=%s", i, total, rec.ID, rec.URL))

	if rec.HTMLPath == "" {
		logger.Warn("record has no html path")
		metrics.ObserveReextract("missing", "")
		return outcomeMissing
	}
	raw, err := os.ReadFile(rec.HTMLPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("html file missing", zap.String("html_path", rec.HTMLPath))
		} else {
			logger.Warn("html file unreadable", zap.String("html_path", rec.HTMLPath), zap.Error(err))
		}
		metrics.ObserveReextract("missing", "")
		return outcomeMissing
	}

	pageURL, _ := url.Parse(rec.URL) //nolint:errcheck // nil only disables link resolution
	result := r.cascade.Extract(raw, pageURL)
	if result.Text == "" {
		logger.Warn("no strategy produced text")
		metrics.ObserveReextract("empty", "")
		return outcomeEmpty
	}

	updated, err := r.store.UpdateText(ctx, rec.ID, result.Text, force)
	if err != nil {
		logger.Error("update failed", zap.Error(err))
		metrics.ObserveReextract("failed", result.Strategy)
		return outcomeFailed
	}
	if !updated {
		logger.Info("record already has text; left unchanged")
		metrics.ObserveReextract("unchanged", result.Strategy)
		return outcomeUnchanged
	}
	logger.Info("text updated", zap.String("strategy", result.Strategy), zap.Int("chars", len([]rune(result.Text))))
	metrics.ObserveReextract("updated", result.Strategy)
	return outcomeUpdated
}

// explainEmptySelection logs why a targeted run matched nothing.
func (r *Runner) explainEmptySelection(ctx context.Context, opts Options) {
	if opts.ID <= 0 {
		r.logger.Info("no records need text")
		return
	}
	_, err := r.store.Get(ctx, opts.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.logger.Warn("no article with that id", zap.Int64("id", opts.ID))
	case err != nil:
		r.logger.Warn("article lookup failed", zap.Int64("id", opts.ID), zap.Error(err))
	default:
		r.logger.Info("article already has text; use --force to reprocess", zap.Int64("id", opts.ID))
	}
}
