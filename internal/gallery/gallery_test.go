package gallery

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Solarigin/Like-Gallery/internal/store"
)

func TestRebuildWritesOrderedManifest(t *testing.T) {
	baseDir := t.TempDir()
	s, err := store.Open(filepath.Join(baseDir, "sia.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	err = s.InTransaction(ctx, func(tx *store.Tx) error {
		itemID, err := tx.CreateItem(ctx, "alice", "p1", "https://example.com/p1")
		if err != nil {
			return err
		}
		assetID, _, err := tx.UpsertAssetByHash(ctx, "h1", "jpg", 10)
		require.NoError(t, err)
		if _, err := tx.InsertFile(ctx, assetID, itemID, "00001_alice/00001_alice_001.jpg", "00001_alice", older); err != nil {
			return err
		}
		_, err = tx.InsertFile(ctx, assetID, itemID, "00001_alice/00001_alice_002.jpg", "00001_alice", newer)
		return err
	})
	require.NoError(t, err)

	idx := New()
	require.NoError(t, idx.Rebuild(ctx, s, baseDir))

	data, err := os.ReadFile(filepath.Join(baseDir, "images.json"))
	require.NoError(t, err)

	var entries []Entry
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "00001_alice/00001_alice_002.jpg", entries[0].Path)
	assert.Equal(t, "00001_alice/00001_alice_001.jpg", entries[1].Path)
	assert.Equal(t, "p1", entries[0].PostID)
	assert.Equal(t, "https://example.com/p1", entries[0].Source)
}

func TestReadOrInitWritesEmptyArrayWhenMissing(t *testing.T) {
	baseDir := t.TempDir()
	data, err := ReadOrInit(baseDir)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
	assert.FileExists(t, filepath.Join(baseDir, "images.json"))
}
