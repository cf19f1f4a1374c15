package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileExists reports whether a File row already exists for relativePath.
func (s *Store) FileExists(ctx context.Context, relativePath string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE relative_path = ?`, relativePath).Scan(&n); err != nil {
		return false, fmt.Errorf("store: file exists: %w", err)
	}
	return n > 0, nil
}

// TrackFile hashes the file at absPath and, if relativePath has no File
// row yet, upserts its Asset and inserts a File row for it with no
// originating item (spec.md §4.2 invariant "every file on disk has a
// matching File row"; §4.6 loose-image/in-folder adoption and §6 repair
// both discover files this way rather than through the save endpoint).
// A no-op if relativePath is already tracked.
func (s *Store) TrackFile(ctx context.Context, absPath, relativePath, folderName string) error {
	exists, err := s.FileExists(ctx, relativePath)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", absPath, err)
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return fmt.Errorf("store: hash %s: %w", absPath, err)
	}

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("store: stat %s: %w", absPath, err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	hash := hex.EncodeToString(hasher.Sum(nil))

	return s.InTransaction(ctx, func(tx *Tx) error {
		assetID, _, err := tx.UpsertAssetByHash(ctx, hash, ext, size)
		if err != nil {
			return err
		}
		_, err = tx.InsertFile(ctx, assetID, 0, relativePath, folderName, info.ModTime())
		return err
	})
}
