// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site      SiteConfig      `mapstructure:"site"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Robots    RobotsConfig    `mapstructure:"robots"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	Extract   ExtractConfig   `mapstructure:"extract"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// SiteConfig identifies the news site and its paginated listing.
type SiteConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	ListingPath string `mapstructure:"listing_path"`
	StartParam  string `mapstructure:"start_param"`
}

// CrawlConfig governs the listing walk and article dispatch.
type CrawlConfig struct {
	StartFrom            int     `mapstructure:"start_from"`
	MaxStart             int     `mapstructure:"max_start"`
	ListingDelayMs       int     `mapstructure:"listing_delay_ms"`
	ArticleDelayMs       int     `mapstructure:"article_delay_ms"`
	ArticleWorkers       int     `mapstructure:"article_workers"`
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second"`
	NormalizeURLs        bool    `mapstructure:"normalize_urls"`
	DownloadImages       bool    `mapstructure:"download_images"`
}

// HTTPConfig configures the shared HTTP client and its retry behavior.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxAttempts      int    `mapstructure:"max_attempts"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	CookieFile       string `mapstructure:"cookie_file"`
	MaxBodyBytes     int64  `mapstructure:"max_body_bytes"`
}

// RobotsConfig toggles robots.txt enforcement.
type RobotsConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"`
}

// FieldRule is one step of a field cascade: a selector and an optional
// attribute. An empty Attr means the element text.
type FieldRule struct {
	Selector string `mapstructure:"selector"`
	Attr     string `mapstructure:"attr"`
}

// SelectorsConfig holds the ordered selector cascades used during the crawl.
type SelectorsConfig struct {
	ListingLinks  []string    `mapstructure:"listing_links"`
	Title         []FieldRule `mapstructure:"title"`
	PublishedAt   []FieldRule `mapstructure:"published_at"`
	Author        []FieldRule `mapstructure:"author"`
	BodyContainer string      `mapstructure:"body_container"`
	Paragraph     string      `mapstructure:"paragraph"`
	Image         string      `mapstructure:"image"`
}

// ExtractConfig configures the text re-extraction cascade.
// NoiseSelectors are stripped, on top of script and layout tags, before the
// container and paragraph strategies run.
type ExtractConfig struct {
	Engine         string   `mapstructure:"engine"`
	MinChars       int      `mapstructure:"min_chars"`
	Containers     []string `mapstructure:"containers"`
	NoiseSelectors []string `mapstructure:"noise_selectors"`
	Workers        int      `mapstructure:"workers"`
}

// StorageConfig sets the output directory and the metadata store backend.
type StorageConfig struct {
	OutDir          string `mapstructure:"out_dir"`
	Driver          string `mapstructure:"driver"`
	DSN             string `mapstructure:"dsn"`
	ImageChunkBytes int    `mapstructure:"image_chunk_bytes"`
}

// LoggingConfig toggles zap development features and file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"start-from": "crawl.start_from",
	"max-start":  "crawl.max_start",
	"out-dir":    "storage.out_dir",
	"workers":    "extract.workers",
}

// Load builds a Config from disk, environment, and any bound flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.listing_path", "/news")
	v.SetDefault("site.start_param", "start")
	v.SetDefault("crawl.start_from", 0)
	v.SetDefault("crawl.max_start", 1000)
	v.SetDefault("crawl.listing_delay_ms", 1000)
	v.SetDefault("crawl.article_delay_ms", 1000)
	v.SetDefault("crawl.article_workers", 1)
	v.SetDefault("crawl.max_requests_per_second", 0)
	v.SetDefault("crawl.normalize_urls", false)
	v.SetDefault("crawl.download_images", true)
	v.SetDefault("http.user_agent", "news-archiver/0.1 (+https://github.com/JakeFAU/news-archiver)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_attempts", 4)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 8000)
	v.SetDefault("http.max_body_bytes", 16<<20)
	v.SetDefault("robots.enabled", true)
	v.SetDefault("robots.cache_ttl_seconds", 0)
	v.SetDefault("selectors.listing_links", []string{
		"h2.headline a",
		"article h2 a",
		".news-list a.title",
		"article a[href]",
	})
	v.SetDefault("selectors.title", []map[string]string{
		{"selector": "h1"},
		{"selector": "title"},
	})
	v.SetDefault("selectors.published_at", []map[string]string{
		{"selector": "time", "attr": "datetime"},
		{"selector": "time"},
		{"selector": "meta[property='article:published_time']", "attr": "content"},
		{"selector": "meta[name='date']", "attr": "content"},
	})
	v.SetDefault("selectors.author", []map[string]string{
		{"selector": "meta[name='author']", "attr": "content"},
		{"selector": "meta[property='article:author']", "attr": "content"},
	})
	v.SetDefault("selectors.body_container", "article")
	v.SetDefault("selectors.paragraph", "p")
	v.SetDefault("selectors.image", "img")
	v.SetDefault("extract.engine", "trafilatura")
	v.SetDefault("extract.min_chars", 50)
	v.SetDefault("extract.containers", []string{
		"section.article-content[itemprop='articleBody']",
		"section.article-content",
		"section.article-full",
		"div.article-content-main",
		"div.article-content",
		"div[itemprop='articleBody']",
		"article",
		"main",
	})
	v.SetDefault("extract.noise_selectors", []string{
		".article-tools",
		".toolbox",
		".share",
		".social-share",
		".print",
		".print-button",
		".visually-hidden",
		".sr-only",
		".ad",
		".advert",
		".anzeigen",
		".ad-box",
		".sidebar",
		".related",
		".teaser",
	})
	v.SetDefault("extract.workers", 4)
	v.SetDefault("storage.out_dir", "data")
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.image_chunk_bytes", 8192)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	base, err := url.Parse(c.Site.BaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return fmt.Errorf("site.base_url must be an absolute http(s) URL")
	}
	if !strings.HasPrefix(c.Site.ListingPath, "/") {
		return fmt.Errorf("site.listing_path must start with /")
	}
	if strings.TrimSpace(c.Site.StartParam) == "" {
		return fmt.Errorf("site.start_param is required")
	}
	if c.Crawl.StartFrom < 0 {
		return fmt.Errorf("crawl.start_from must be >= 0")
	}
	if c.Crawl.MaxStart < c.Crawl.StartFrom {
		return fmt.Errorf("crawl.max_start must be >= crawl.start_from")
	}
	if c.Crawl.ListingDelayMs < 0 || c.Crawl.ArticleDelayMs < 0 {
		return fmt.Errorf("crawl delays must be >= 0")
	}
	if c.Crawl.ArticleWorkers <= 0 {
		return fmt.Errorf("crawl.article_workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.HTTP.BackoffInitialMs < 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http backoff must satisfy 0 <= backoff_initial_ms <= backoff_max_ms")
	}
	if strings.TrimSpace(c.HTTP.UserAgent) == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if len(c.Selectors.ListingLinks) == 0 {
		return fmt.Errorf("selectors.listing_links needs at least one selector")
	}
	switch c.Extract.Engine {
	case "trafilatura", "readability":
	default:
		return fmt.Errorf("extract.engine must be trafilatura or readability, got %q", c.Extract.Engine)
	}
	if c.Extract.MinChars < 0 {
		return fmt.Errorf("extract.min_chars must be >= 0")
	}
	if c.Extract.Workers <= 0 {
		return fmt.Errorf("extract.workers must be > 0")
	}
	if strings.TrimSpace(c.Storage.OutDir) == "" {
		return fmt.Errorf("storage.out_dir is required")
	}
	switch c.Storage.Driver {
	case "sqlite":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn must be set when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Storage.ImageChunkBytes <= 0 {
		return fmt.Errorf("storage.image_chunk_bytes must be > 0")
	}
	return nil
}

// DatabaseDSN returns the configured DSN, defaulting SQLite to a file in the output directory.
func (c Config) DatabaseDSN() string {
	if c.Storage.DSN != "" || c.Storage.Driver != "sqlite" {
		return c.Storage.DSN
	}
	return filepath.Join(c.Storage.OutDir, "articles.db")
}

// ListingDelay is the pause between listing pages.
func (c Config) ListingDelay() time.Duration {
	return time.Duration(c.Crawl.ListingDelayMs) * time.Millisecond
}

// ArticleDelay is the pause after each article visit.
func (c Config) ArticleDelay() time.Duration {
	return time.Duration(c.Crawl.ArticleDelayMs) * time.Millisecond
}

// RequestTimeout converts the HTTP timeout into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps every retry delay, including Retry-After.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}

// RobotsCacheTTL returns the robots cache lifetime; zero disables caching.
func (c Config) RobotsCacheTTL() time.Duration {
	return time.Duration(c.Robots.CacheTTLSeconds) * time.Second
}
