package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sia.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertAssetByHashDeduplicates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx *Tx) error {
		id1, wasNew1, err := tx.UpsertAssetByHash(ctx, "deadbeef", "jpg", 1024)
		require.NoError(t, err)
		assert.True(t, wasNew1)

		id2, wasNew2, err := tx.UpsertAssetByHash(ctx, "deadbeef", "jpg", 1024)
		require.NoError(t, err)
		assert.False(t, wasNew2)
		assert.Equal(t, id1, id2)
		return nil
	})
	require.NoError(t, err)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx *Tx) error {
		_, err := tx.CreateItem(ctx, "alice", "p1", "")
		require.NoError(t, err)
		return assert.AnError
	})
	assert.Error(t, err)

	var n int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&n)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListFilesOrderedByMtimeDesc(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	err := s.InTransaction(ctx, func(tx *Tx) error {
		assetID, _, err := tx.UpsertAssetByHash(ctx, "h1", "jpg", 10)
		require.NoError(t, err)
		_, err = tx.InsertFile(ctx, assetID, 0, "00001_alice/a.jpg", "00001_alice", older)
		require.NoError(t, err)
		_, err = tx.InsertFile(ctx, assetID, 0, "00001_alice/b.jpg", "00001_alice", newer)
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)

	rows, err := s.ListFiles(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "00001_alice/b.jpg", rows[0].RelativePath)
	assert.Equal(t, "00001_alice/a.jpg", rows[1].RelativePath)
}

func TestListFilesJoinsItemByItemIDNotFolderName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx *Tx) error {
		itemID, err := tx.CreateItem(ctx, "alice", "p1", "https://example.com/p1")
		if err != nil {
			return err
		}
		assetID, _, err := tx.UpsertAssetByHash(ctx, "h1", "jpg", 10)
		if err != nil {
			return err
		}
		// folder_name ("00001_alice") deliberately does not equal the raw
		// author ("alice") stored on the item, so a join keyed on that
		// equality would miss this row.
		_, err = tx.InsertFile(ctx, assetID, itemID, "00001_alice/00001_alice_001.jpg", "00001_alice", time.Now())
		return err
	})
	require.NoError(t, err)

	rows, err := s.ListFiles(ctx, ListFilter{Author: "alice"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p1", rows[0].PostID)
	assert.Equal(t, "https://example.com/p1", rows[0].SourceURL)

	n, err := s.CountFiles(ctx, ListFilter{Author: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReconcileDeletesStaleRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InTransaction(ctx, func(tx *Tx) error {
		assetID, _, err := tx.UpsertAssetByHash(ctx, "h1", "jpg", 10)
		require.NoError(t, err)
		_, err = tx.InsertFile(ctx, assetID, 0, "00001_alice/a.jpg", "00001_alice", time.Now())
		require.NoError(t, err)
		_, err = tx.InsertFile(ctx, assetID, 0, "00001_alice/gone.jpg", "00001_alice", time.Now())
		return err
	})
	require.NoError(t, err)

	deleted, err := s.Reconcile(ctx, map[string]struct{}{"00001_alice/a.jpg": {}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	n, err := s.CountFiles(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
