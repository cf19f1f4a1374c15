package naming

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solarigin/Like-Gallery/internal/exif"
)

func TestSafeAuthorReplacesUnsafeChars(t *testing.T) {
	assert.Equal(t, "alice_smith", SafeAuthor("alice smith"))
	assert.Equal(t, "a_b_c", SafeAuthor("a/b\\c"))
	assert.Equal(t, "alice-2024_x", SafeAuthor("alice-2024#x"))
}

func TestResolveAuthorFolderIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, exif.NoopReader{})

	name1, path1, err := e.ResolveAuthorFolder("alice")
	require.NoError(t, err)
	assert.Equal(t, "00001_alice", name1)
	assert.DirExists(t, path1)

	name2, path2, err := e.ResolveAuthorFolder("alice")
	require.NoError(t, err)
	assert.Equal(t, name1, name2)
	assert.Equal(t, path1, path2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResolveAuthorFolderAllocatesSequentially(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, exif.NoopReader{})

	_, _, err := e.ResolveAuthorFolder("alice")
	require.NoError(t, err)
	name, _, err := e.ResolveAuthorFolder("bob")
	require.NoError(t, err)
	assert.Equal(t, "00002_bob", name)
}

func TestReserveIndicesAppendsWithoutGaps(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, exif.NoopReader{})

	_, folderPath, err := e.ResolveAuthorFolder("alice")
	require.NoError(t, err)

	indices, paths, err := e.ReserveIndices("00001_alice", folderPath, 3, []string{"jpg", "png", "jpg"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, indices)
	assert.FileExists(t, paths[0])
	assert.Equal(t, "00001_alice_001.jpg", filepath.Base(paths[0]))
	assert.Equal(t, "00001_alice_003.jpg", filepath.Base(paths[2]))

	more, _, err := e.ReserveIndices("00001_alice", folderPath, 1, []string{"gif"})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, more)
}

func TestIndexedNameLowercasesExtension(t *testing.T) {
	assert.Equal(t, "00001_alice_007.png", IndexedName("00001_alice", 7, ".PNG"))
}
