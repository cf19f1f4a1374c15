package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMaterializesDefaultsOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	s, err := Open(path)
	require.NoError(t, err)

	cur := s.Get()
	assert.Equal(t, Default().Port, cur.Port)
	assert.FileExists(t, path)
}

func TestOpenReadsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	s1, err := Open(path)
	require.NoError(t, err)

	cfg := s1.Get()
	cfg.Port = 9999
	require.NoError(t, s1.Save(cfg))

	s2, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, s2.Get().Port)
}

func TestSaveNotifiesListeners(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	var seen Config
	h := s.AddListener(func(c Config) { seen = c })

	cfg := s.Get()
	cfg.Concurrency = 7
	require.NoError(t, s.Save(cfg))
	assert.Equal(t, 7, seen.Concurrency)

	s.RemoveListener(h)
	cfg.Concurrency = 9
	require.NoError(t, s.Save(cfg))
	assert.Equal(t, 7, seen.Concurrency, "unregistered listener must not observe later saves")
}

func TestSignatureChangesWithContent(t *testing.T) {
	a := Default()
	b := Default()
	b.Port = a.Port + 1
	assert.NotEqual(t, a.Signature(), b.Signature())
	assert.Equal(t, a.Signature(), Default().Signature())
}
