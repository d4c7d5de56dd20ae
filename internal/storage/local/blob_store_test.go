// Package local_test tests the local filesystem blob store.
package local_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-archiver/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
		assert.DirExists(t, filepath.Join(dir, "html"))
		assert.DirExists(t, filepath.Join(dir, "images"))
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
		// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
		require.NoError(t, os.Chmod(tempDir, 0o700))
	})
}

func TestSaveHTML(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	path, err := store.SaveHTML("city-council-votes", []byte("<html>v1</html>"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, "html", "city-council-votes.html"), path)

	// Same slug overwrites.
	_, err = store.SaveHTML("city-council-votes", []byte("<html>v2</html>"))
	require.NoError(t, err)
	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>v2</html>", string(data))

	entries, err := os.ReadDir(filepath.Join(tempDir, "html"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteAtomicLeavesNothingOnFailure(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	_, err = store.WriteAtomic("images/a.jpg", func(w io.Writer) error {
		_, _ = w.Write([]byte("partial")) //nolint:errcheck // test writer
		return errors.New("connection reset")
	})
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(tempDir, "images"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImagePath(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	path, err := store.ImagePath("story-photo.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, "images", "story-photo.png"), path)
	assert.False(t, store.Exists(path))

	_, err = store.SaveImage("story-photo.png", func(w io.Writer) error {
		_, err := w.Write([]byte("png"))
		return err
	})
	require.NoError(t, err)
	assert.True(t, store.Exists(path))

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.ImagePath("../../etc/passwd")
		assert.Error(t, err)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := store.WriteAtomic(" ", func(io.Writer) error { return nil })
		assert.Error(t, err)
	})
}
