package crawler

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/news-archiver/internal/extract"
)

// Config holds the settings for a listing walk.
// It is decoupled from Viper so the walker can be built directly in tests.
type Config struct {
	BaseURL     string
	ListingPath string
	StartParam  string
	StartFrom   int
	MaxStart    int
	// ListingSelectors is the ordered headline-link cascade; the first
	// selector that matches wins.
	ListingSelectors []extract.Selector
	ListingDelay     time.Duration
	ArticleDelay     time.Duration
	// ArticleWorkers <= 1 visits articles inline on the discovery goroutine.
	ArticleWorkers int
}

// ListingURL builds the listing page URL for offset.
func (c Config) ListingURL(offset int) string {
	param := c.StartParam
	if param == "" {
		param = "start"
	}
	base := strings.TrimRight(c.BaseURL, "/") + c.ListingPath
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + url.QueryEscape(param) + "=" + strconv.Itoa(offset)
}

func (c Config) validate() error {
	if _, err := url.Parse(c.BaseURL); err != nil || c.BaseURL == "" {
		return fmt.Errorf("invalid base url %q", c.BaseURL)
	}
	if len(c.ListingSelectors) == 0 {
		return fmt.Errorf("at least one listing selector is required")
	}
	if c.StartFrom < 0 || c.MaxStart < c.StartFrom {
		return fmt.Errorf("invalid offset range [%d, %d]", c.StartFrom, c.MaxStart)
	}
	return nil
}
