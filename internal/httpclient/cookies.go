package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// fileCookie is one entry of the cookie file.
type fileCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// LoadCookieJar returns a session jar for baseURL, pre-seeded from path.
// A missing file is silent and a malformed file is logged; both yield an
// empty jar so the crawl proceeds without cookies.
func LoadCookieJar(path, baseURL string, logger *zap.Logger) (http.CookieJar, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("new cookie jar: %w", err)
	}
	if strings.TrimSpace(path) == "" {
		return jar, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	cookies, err := readCookieFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return jar, nil
	case err != nil:
		logger.Warn("ignoring cookie file", zap.String("path", path), zap.Error(err))
		return jar, nil
	}

	loaded, rejected := seedJar(jar, base, cookies)
	if rejected > 0 {
		logger.Warn("cookie jar rejected cookies; check their domain",
			zap.String("path", path), zap.Int("rejected", rejected))
	}
	logger.Info("loaded cookies", zap.String("path", path), zap.Int("count", loaded))
	return jar, nil
}

// seedJar stores each cookie under a URL for its own domain and reports how
// many cookies the jar accepted and how many it refused.
func seedJar(jar http.CookieJar, base *url.URL, cookies []*http.Cookie) (int, int) {
	byDomain := make(map[string][]*http.Cookie)
	var order []string
	for _, c := range cookies {
		host := c.Domain
		if host == "" {
			host = base.Hostname()
		}
		if _, seen := byDomain[host]; !seen {
			order = append(order, host)
		}
		byDomain[host] = append(byDomain[host], c)
	}

	loaded := 0
	for _, host := range order {
		target := &url.URL{Scheme: base.Scheme, Host: host, Path: "/"}
		jar.SetCookies(target, byDomain[host])
		for _, c := range byDomain[host] {
			if hasCookie(jar.Cookies(&url.URL{Scheme: base.Scheme, Host: host, Path: c.Path}), c.Name) {
				loaded++
			}
		}
	}
	return loaded, len(cookies) - loaded
}

func readCookieFile(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration.
	if err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}
	var entries []fileCookie
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode cookie file: %w", err)
	}
	cookies := make([]*http.Cookie, 0, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		p := e.Path
		if p == "" {
			p = "/"
		}
		cookies = append(cookies, &http.Cookie{
			Name:   e.Name,
			Value:  e.Value,
			Domain: strings.TrimPrefix(e.Domain, "."),
			Path:   p,
		})
	}
	return cookies, nil
}

func hasCookie(cookies []*http.Cookie, name string) bool {
	for _, c := range cookies {
		if c.Name == name {
			return true
		}
	}
	return false
}
