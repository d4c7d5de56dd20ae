// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/news-archiver/internal/api"
	"github.com/JakeFAU/news-archiver/internal/clock/system"
	"github.com/JakeFAU/news-archiver/internal/config"
	"github.com/JakeFAU/news-archiver/internal/crawler"
	"github.com/JakeFAU/news-archiver/internal/extract"
	"github.com/JakeFAU/news-archiver/internal/httpclient"
	"github.com/JakeFAU/news-archiver/internal/id/uuid"
	"github.com/JakeFAU/news-archiver/internal/logging"
	"github.com/JakeFAU/news-archiver/internal/metrics"
	"github.com/JakeFAU/news-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/news-archiver/internal/policy/robots"
	"github.com/JakeFAU/news-archiver/internal/reextract"
	"github.com/JakeFAU/news-archiver/internal/storage/local"
	"github.com/JakeFAU/news-archiver/internal/store"
	"github.com/JakeFAU/news-archiver/internal/store/postgres"
	"github.com/JakeFAU/news-archiver/internal/store/sqlite"
)

// ErrDatabaseMissing is returned when reextract runs before any crawl created the database.
var ErrDatabaseMissing = sqlite.ErrDatabaseMissing

// CrawlRunner runs one listing walk. *crawler.Walker satisfies it.
type CrawlRunner interface {
	Run(ctx context.Context) (crawler.RunSummary, error)
}

// ReextractRunner runs one text re-extraction pass. *reextract.Runner satisfies it.
type ReextractRunner interface {
	Run(ctx context.Context, opts reextract.Options) (reextract.Report, error)
}

// App holds the shared, long-lived services for one command invocation:
// the logger, the metadata store and the optional operator server.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	mu           sync.Mutex
	store        store.ArticleStore
	serverCancel context.CancelFunc
	serverDone   chan struct{}
}

// New builds the logger and metrics registry. Stores and HTTP clients are
// created by the command that needs them.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()
	return &App{cfg: cfg, logger: logger}, nil
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// OpenStore opens the configured metadata store once per App. With
// mustExist, a missing SQLite file fails with ErrDatabaseMissing instead of
// being created.
func (a *App) OpenStore(ctx context.Context, mustExist bool) (store.ArticleStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}

	var (
		st  store.ArticleStore
		err error
	)
	switch a.cfg.Storage.Driver {
	case "postgres":
		a.logger.Info("connecting to postgres")
		st, err = postgres.New(ctx, postgres.Config{DSN: a.cfg.Storage.DSN})
	default:
		path := a.cfg.DatabaseDSN()
		a.logger.Info("opening sqlite database", zap.String("path", path))
		st, err = sqlite.Open(path, sqlite.Options{MustExist: mustExist})
	}
	if err != nil {
		return nil, fmt.Errorf("open article store: %w", err)
	}
	a.store = st
	a.startOperatorServer(st)
	return st, nil
}

// BuildCrawl wires the HTTP client, robots gate, rate ceiling, file store
// and article fetcher into a Walker.
func (a *App) BuildCrawl(ctx context.Context) (CrawlRunner, error) {
	cfg := a.cfg
	st, err := a.OpenStore(ctx, false)
	if err != nil {
		return nil, err
	}
	files, err := local.New(local.Config{BaseDir: cfg.Storage.OutDir})
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	jar, err := httpclient.LoadCookieJar(cfg.HTTP.CookieFile, cfg.Site.BaseURL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("load cookies: %w", err)
	}
	client := httpclient.New(httpclient.Config{
		UserAgent:      cfg.HTTP.UserAgent,
		Timeout:        cfg.RequestTimeout(),
		MaxAttempts:    cfg.HTTP.MaxAttempts,
		BackoffInitial: cfg.BackoffInitial(),
		BackoffMax:     cfg.BackoffMax(),
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		ChunkBytes:     cfg.Storage.ImageChunkBytes,
		Jar:            jar,
	}, a.logger)
	gate := robots.New(robots.Config{
		Enabled:   cfg.Robots.Enabled,
		UserAgent: cfg.HTTP.UserAgent,
		CacheTTL:  cfg.RobotsCacheTTL(),
	}, client, a.logger)
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Crawl.MaxRequestsPerSecond})
	gated := crawler.NewGatedClient(client, gate, limiter)

	rules, err := extract.CompileArticleRules(articleRulesConfig(cfg.Selectors))
	if err != nil {
		return nil, fmt.Errorf("compile article selectors: %w", err)
	}
	listing, err := extract.CompileSelectors(cfg.Selectors.ListingLinks)
	if err != nil {
		return nil, fmt.Errorf("compile listing selectors: %w", err)
	}

	articles := crawler.NewArticleFetcher(crawler.ArticleOptions{
		Rules:          rules,
		NormalizeURLs:  cfg.Crawl.NormalizeURLs,
		DownloadImages: cfg.Crawl.DownloadImages,
		Clock:          system.New(),
	}, gated, st, files, a.logger)

	walker, err := crawler.NewWalker(crawler.Config{
		BaseURL:          cfg.Site.BaseURL,
		ListingPath:      cfg.Site.ListingPath,
		StartParam:       cfg.Site.StartParam,
		StartFrom:        cfg.Crawl.StartFrom,
		MaxStart:         cfg.Crawl.MaxStart,
		ListingSelectors: listing,
		ListingDelay:     cfg.ListingDelay(),
		ArticleDelay:     cfg.ArticleDelay(),
		ArticleWorkers:   cfg.Crawl.ArticleWorkers,
	}, gated, articles, uuid.NewUUIDGenerator(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("init walker: %w", err)
	}
	return walker, nil
}

// BuildReextract opens the existing store and builds the extraction cascade.
func (a *App) BuildReextract(ctx context.Context) (ReextractRunner, error) {
	st, err := a.OpenStore(ctx, true)
	if err != nil {
		return nil, err
	}
	cascade, err := extract.DefaultCascade(extract.CascadeConfig{
		Engine:         a.cfg.Extract.Engine,
		MinChars:       a.cfg.Extract.MinChars,
		Containers:     a.cfg.Extract.Containers,
		NoiseSelectors: a.cfg.Extract.NoiseSelectors,
	})
	if err != nil {
		return nil, fmt.Errorf("init extraction cascade: %w", err)
	}
	return reextract.New(st, cascade, a.cfg.Extract.Workers, a.logger), nil
}

func articleRulesConfig(sel config.SelectorsConfig) extract.ArticleRulesConfig {
	specs := func(rules []config.FieldRule) []extract.RuleSpec {
		out := make([]extract.RuleSpec, 0, len(rules))
		for _, r := range rules {
			out = append(out, extract.RuleSpec{Selector: r.Selector, Attr: r.Attr})
		}
		return out
	}
	return extract.ArticleRulesConfig{
		Title:         specs(sel.Title),
		PublishedAt:   specs(sel.PublishedAt),
		Author:        specs(sel.Author),
		BodyContainer: sel.BodyContainer,
		Paragraph:     sel.Paragraph,
		Image:         sel.Image,
	}
}

// startOperatorServer serves /metrics and the read-only API when metrics.addr is set.
// Callers hold a.mu.
func (a *App) startOperatorServer(st store.ArticleStore) {
	if a.cfg.Metrics.Addr == "" || a.serverCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	a.serverCancel = cancel
	a.serverDone = done
	server := api.NewServer(st, a.logger)
	go func() {
		defer close(done)
		if err := server.Serve(ctx, a.cfg.Metrics.Addr); err != nil {
			a.logger.Error("operator server failed", zap.Error(err))
		}
	}()
}

// Close gracefully shuts down all services in the App container.
// It is called by a Cobra hook after the command finishes execution.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serverCancel != nil {
		a.serverCancel()
		<-a.serverDone
		a.serverCancel = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("error closing article store", zap.Error(err))
		}
		a.store = nil
	}
	_ = a.logger.Sync() //nolint:errcheck // fails on console file descriptors
}
