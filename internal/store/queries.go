package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Asset mirrors the Asset row (spec.md §3).
type Asset struct {
	ID          int64
	ContentHash string
	Extension   string
	ByteLength  int64
	CreatedAt   time.Time
}

// FileRow is one placed copy of an asset, joined with its item's
// provenance for gallery/listing purposes.
type FileRow struct {
	ID           int64
	AssetID      int64
	RelativePath string
	FolderName   string
	Mtime        time.Time
	PostID       string
	SourceURL    string
}

// FindAssetByHash looks up an asset by its content hash. ok is false when
// no such asset exists.
func (s *Store) FindAssetByHash(ctx context.Context, hash string) (a Asset, ok bool, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, content_hash, extension, byte_length, created_at FROM assets WHERE content_hash = ?`, hash)
	if scanErr := row.Scan(&a.ID, &a.ContentHash, &a.Extension, &a.ByteLength, &a.CreatedAt); scanErr != nil {
		if scanErr == sql.ErrNoRows {
			return Asset{}, false, nil
		}
		return Asset{}, false, fmt.Errorf("store: find asset: %w", scanErr)
	}
	return a, true, nil
}

// ListFilter narrows ListFiles results (spec.md §4.2, §4.8).
type ListFilter struct {
	Author string // exact match, empty means no filter
	Query  string // substring against relative_path, empty means no filter
	Limit  int    // 0 means unlimited
	Offset int
}

// ListFiles returns files joined with their originating item, most
// recently modified first (spec.md §4.2 "order=mtime_desc").
func (s *Store) ListFiles(ctx context.Context, filter ListFilter) ([]FileRow, error) {
	query := strings.Builder{}
	query.WriteString(`
SELECT f.id, f.asset_id, f.relative_path, f.folder_name, f.mtime,
       COALESCE(i.post_id, ''), COALESCE(i.source_url, '')
FROM files f
LEFT JOIN items i ON i.id = f.item_id
WHERE 1 = 1`)

	var args []any
	if filter.Author != "" {
		query.WriteString(" AND i.author = ?")
		args = append(args, filter.Author)
	}
	if filter.Query != "" {
		query.WriteString(" AND f.relative_path LIKE ?")
		args = append(args, "%"+filter.Query+"%")
	}
	query.WriteString(" ORDER BY f.mtime DESC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list files: %w", err)
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var r FileRow
		if err := rows.Scan(&r.ID, &r.AssetID, &r.RelativePath, &r.FolderName, &r.Mtime, &r.PostID, &r.SourceURL); err != nil {
			return nil, fmt.Errorf("store: scan file row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountFiles returns the total row count matching filter (ignoring
// Limit/Offset), used for pagination totals in C8.
func (s *Store) CountFiles(ctx context.Context, filter ListFilter) (int, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT COUNT(*) FROM files f LEFT JOIN items i ON i.id = f.item_id WHERE 1 = 1`)
	var args []any
	if filter.Author != "" {
		query.WriteString(" AND i.author = ?")
		args = append(args, filter.Author)
	}
	if filter.Query != "" {
		query.WriteString(" AND f.relative_path LIKE ?")
		args = append(args, "%"+filter.Query+"%")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query.String(), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count files: %w", err)
	}
	return n, nil
}

// Reconcile deletes File rows whose relative_path is not present in
// existingRelPaths (spec.md §4.2, used by the watcher's full-sync pass).
func (s *Store) Reconcile(ctx context.Context, existingRelPaths map[string]struct{}) (int64, error) {
	var deleted int64
	err := s.InTransaction(ctx, func(tx *Tx) error {
		rows, err := tx.tx.QueryContext(ctx, `SELECT relative_path FROM files`)
		if err != nil {
			return fmt.Errorf("store: reconcile scan: %w", err)
		}
		var stale []string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			if _, ok := existingRelPaths[p]; !ok {
				stale = append(stale, p)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, p := range stale {
			if _, err := tx.tx.ExecContext(ctx, `DELETE FROM files WHERE relative_path = ?`, p); err != nil {
				return fmt.Errorf("store: reconcile delete %s: %w", p, err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}
