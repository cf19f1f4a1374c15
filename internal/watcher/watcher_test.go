package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solarigin/Like-Gallery/internal/exif"
	"github.com/Solarigin/Like-Gallery/internal/gallery"
	"github.com/Solarigin/Like-Gallery/internal/naming"
	"github.com/Solarigin/Like-Gallery/internal/store"
)

func newTestWatcher(t *testing.T, baseDir string) *Watcher {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sia.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	engine := naming.New(baseDir, exif.NoopReader{})
	w, err := New(Options{
		BaseDir:        baseDir,
		ImageExts:      map[string]struct{}{"jpg": {}, "png": {}},
		StabilityWait:  5 * time.Millisecond,
		StabilityTries: 2,
	}, engine, st, gallery.New(), nil)
	require.NoError(t, err)
	t.Cleanup(w.Stop)
	return w
}

func TestShouldIgnoreFileRespectsExtensionSet(t *testing.T) {
	baseDir := t.TempDir()
	w := newTestWatcher(t, baseDir)

	assert.True(t, w.shouldIgnoreFile(filepath.Join(baseDir, ".hidden.jpg")))
	assert.True(t, w.shouldIgnoreFile(filepath.Join(baseDir, "doc.txt")))
	assert.False(t, w.shouldIgnoreFile(filepath.Join(baseDir, "photo.jpg")))
	assert.False(t, w.shouldIgnoreFile(filepath.Join(baseDir, "photo.PNG")))
}

func TestShouldIgnoreDirSkipsSystemNames(t *testing.T) {
	baseDir := t.TempDir()
	w := newTestWatcher(t, baseDir)

	assert.True(t, w.shouldIgnoreDir(filepath.Join(baseDir, "__pycache__")))
	assert.True(t, w.shouldIgnoreDir(filepath.Join(baseDir, ".git")))
	assert.False(t, w.shouldIgnoreDir(filepath.Join(baseDir, "00001_alice")))
	assert.False(t, w.shouldIgnoreDir(baseDir))
}

func TestWaitStableRequiresTwoEqualSizes(t *testing.T) {
	baseDir := t.TempDir()
	w := newTestWatcher(t, baseDir)

	path := filepath.Join(baseDir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("stable"), 0o644))

	assert.True(t, w.waitStable(path))
}

func TestWaitStableReturnsFalseForMissingFile(t *testing.T) {
	baseDir := t.TempDir()
	w := newTestWatcher(t, baseDir)

	assert.False(t, w.waitStable(filepath.Join(baseDir, "nope.jpg")))
}

func TestHandleLooseImageMovesIntoNewFolder(t *testing.T) {
	baseDir := t.TempDir()
	w := newTestWatcher(t, baseDir)

	loose := filepath.Join(baseDir, "photo.jpg")
	require.NoError(t, os.WriteFile(loose, []byte("x"), 0o644))

	ctx := context.Background()
	w.handleLooseImage(ctx, loose)

	entries, err := os.ReadDir(baseDir)
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if e.IsDir() && e.Name() == "00001_photo" {
			found = true
		}
	}
	assert.True(t, found, "loose image should be adopted into a new author folder")

	rows, err := w.store.ListFiles(ctx, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1, "adopted file must get a File row even with no originating save request")
	assert.Equal(t, "00001_photo", rows[0].FolderName)

	data, err := os.ReadFile(filepath.Join(baseDir, "images.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "00001_photo", "images.json must include the adopted file")
}
