// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-archiver/internal/app"
	"github.com/JakeFAU/news-archiver/internal/config"
)

func loadConfig(t *testing.T, outDir string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`
site:
  base_url: https://news.example.com
storage:
  out_dir: %s
logging:
  development: false
  level: error
`, outDir)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	return cfg
}

func TestBuildCrawlCreatesStore(t *testing.T) {
	outDir := t.TempDir()
	a, err := app.New(loadConfig(t, outDir))
	require.NoError(t, err)
	defer a.Close()

	runner, err := a.BuildCrawl(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runner)
	assert.FileExists(t, filepath.Join(outDir, "articles.db"))

	// The store is shared between builders.
	reextractor, err := a.BuildReextract(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, reextractor)
}

func TestBuildCrawlCreatesMissingOutDir(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "data")
	a, err := app.New(loadConfig(t, outDir))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.BuildCrawl(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, "articles.db"))
	assert.DirExists(t, filepath.Join(outDir, "html"))
	assert.DirExists(t, filepath.Join(outDir, "images"))
}

func TestBuildReextractRequiresDatabase(t *testing.T) {
	outDir := t.TempDir()
	a, err := app.New(loadConfig(t, outDir))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.BuildReextract(context.Background())
	require.ErrorIs(t, err, app.ErrDatabaseMissing)
	assert.NoFileExists(t, filepath.Join(outDir, "articles.db"))
}

func TestBuildReextractUsesNoiseSelectors(t *testing.T) {
	outDir := t.TempDir()
	cfg := loadConfig(t, outDir)
	cfg.Extract.NoiseSelectors = []string{"div["}
	a, err := app.New(cfg)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.OpenStore(context.Background(), false)
	require.NoError(t, err)
	_, err = a.BuildReextract(context.Background())
	require.ErrorContains(t, err, "noise selectors")
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := app.New(loadConfig(t, t.TempDir()))
	require.NoError(t, err)
	_, err = a.OpenStore(context.Background(), false)
	require.NoError(t, err)

	a.Close()
	a.Close()
}
