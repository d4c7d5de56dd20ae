// Package local stores raw article HTML and downloaded images under the output directory.
package local

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	htmlDir   = "html"
	imagesDir = "images"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the output directory; html/ and images/ live beneath it.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates a new local filesystem-backed blob store.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}
	for _, sub := range []string{htmlDir, imagesDir} {
		if err := os.MkdirAll(filepath.Join(cfg.BaseDir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", sub, err)
		}
	}

	return &BlobStore{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// BaseDir returns the output directory.
func (s *BlobStore) BaseDir() string {
	return s.baseDir
}

// SaveHTML writes body to html/{slug}.html and returns the file path.
// An existing file with the same slug is replaced.
func (s *BlobStore) SaveHTML(slug string, body []byte) (string, error) {
	return s.WriteAtomic(filepath.Join(htmlDir, slug+".html"), func(w io.Writer) error {
		_, err := w.Write(body)
		return err //nolint:wrapcheck // wrapped by WriteAtomic
	})
}

// ImagePath returns the destination for an image file name.
func (s *BlobStore) ImagePath(name string) (string, error) {
	return s.resolve(filepath.Join(imagesDir, name))
}

// SaveImage fills images/{name} through fill and returns the file path.
func (s *BlobStore) SaveImage(name string, fill func(io.Writer) error) (string, error) {
	return s.WriteAtomic(filepath.Join(imagesDir, name), fill)
}

// Exists reports whether path already names a file.
func (s *BlobStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteAtomic resolves rel beneath the base directory and fills it through
// fill. Data lands in a temp file first and is renamed into place only when
// fill succeeds, so a failed write leaves no partial file behind.
func (s *BlobStore) WriteAtomic(rel string, fill func(io.Writer) error) (string, error) {
	fullPath, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if err := fill(tmp); err != nil {
		_ = tmp.Close() //nolint:errcheck // already failing
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return "", fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return "", fmt.Errorf("failed to move file into place: %w", err)
	}
	return fullPath, nil
}

// resolve joins rel onto the base directory and rejects paths that escape it.
func (s *BlobStore) resolve(rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", fmt.Errorf("path is required")
	}
	fullPath := filepath.Clean(filepath.Join(s.baseDir, rel))
	if !strings.HasPrefix(fullPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
