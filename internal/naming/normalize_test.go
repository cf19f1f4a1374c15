package naming

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solarigin/Like-Gallery/internal/exif"
)

func TestNormalizeFolderPreservesConformingIndices(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, exif.NoopReader{})

	folderPath := filepath.Join(dir, "00001_alice")
	require.NoError(t, os.Mkdir(folderPath, 0o755))
	writeFile(t, filepath.Join(folderPath, "00001_alice_001.jpg"), "a")
	writeFile(t, filepath.Join(folderPath, "stray.png"), "b")

	renamed, err := e.NormalizeFolder("00001_alice", folderPath, SortByName, ConflictDedup)
	require.NoError(t, err)
	require.Len(t, renamed, 1)

	entries, err := os.ReadDir(folderPath)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, en := range entries {
		names = append(names, en.Name())
	}
	assert.Contains(t, names, "00001_alice_001.jpg")
	assert.Contains(t, names, "00001_alice_002.png")
}

func TestNormalizeFolderIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, exif.NoopReader{})

	folderPath := filepath.Join(dir, "00001_alice")
	require.NoError(t, os.Mkdir(folderPath, 0o755))
	writeFile(t, filepath.Join(folderPath, "random.jpg"), "a")
	writeFile(t, filepath.Join(folderPath, "another.png"), "b")

	_, err := e.NormalizeFolder("00001_alice", folderPath, SortByName, ConflictDedup)
	require.NoError(t, err)

	before, err := os.ReadDir(folderPath)
	require.NoError(t, err)
	beforeNames := dirNames(before)

	renamed, err := e.NormalizeFolder("00001_alice", folderPath, SortByName, ConflictDedup)
	require.NoError(t, err)
	assert.Empty(t, renamed, "second pass over an already-canonical folder renames nothing")

	after, err := os.ReadDir(folderPath)
	require.NoError(t, err)
	assert.Equal(t, beforeNames, dirNames(after))
}

func TestAdoptUnnumberedFolderStripsAndRenames(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, exif.NoopReader{})

	stray := filepath.Join(dir, "00007_leftover")
	require.NoError(t, os.Mkdir(stray, 0o755))
	writeFile(t, filepath.Join(stray, "a.jpg"), "x")

	name, path, err := e.AdoptUnnumberedFolder(stray)
	require.NoError(t, err)
	assert.Equal(t, "00001_leftover", name)
	assert.DirExists(t, path)
}

func TestResolveConflictSkipKeepsOriginalUnderSuffix(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "00001_alice_001.jpg")
	writeFile(t, target, "existing")

	got, err := resolveConflict(target, ConflictSkip)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "00001_alice_001_keep1.jpg"), got)
}

func TestResolveConflictDedupAppendsCounter(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "00001_alice_001.jpg")
	writeFile(t, target, "existing")

	got, err := resolveConflict(target, ConflictDedup)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "00001_alice_001_1.jpg"), got)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func dirNames(entries []os.DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
