// Package store is the metadata store (spec.md §4.2): a single embedded
// relational database file under base_dir holding Assets, Files and Items.
// Modeled on core/db.py's SQLAlchemy schema, re-expressed with
// database/sql over modernc.org/sqlite the way Perkeep's pkg/sorted/sqlite
// and pkg/sorted/sqlkv wrap a SQL driver: open, migrate once, then expose
// narrow operations instead of a raw *sql.DB.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the metadata store. One Store per process per base_dir
// (spec.md §3 "Ownership").
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	content_hash  TEXT NOT NULL UNIQUE,
	extension     TEXT NOT NULL,
	byte_length   INTEGER NOT NULL,
	width         INTEGER,
	height        INTEGER,
	exif_taken_at TIMESTAMP,
	created_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id      INTEGER NOT NULL REFERENCES assets(id),
	item_id       INTEGER REFERENCES items(id),
	relative_path TEXT NOT NULL UNIQUE,
	folder_name   TEXT NOT NULL,
	mtime         TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_folder ON files(folder_name);
CREATE INDEX IF NOT EXISTS idx_files_mtime ON files(mtime);
CREATE INDEX IF NOT EXISTS idx_files_item ON files(item_id);

CREATE TABLE IF NOT EXISTS items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	author     TEXT NOT NULL,
	post_id    TEXT NOT NULL,
	source_url TEXT,
	saved_at   TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_author_post ON items(author, post_id);
`

// Open opens (creating if necessary) the sqlite database at path and runs
// the idempotent schema migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single writer connection avoids SQLITE_BUSY from concurrent
	// writers stepping on each other inside one process; readers still
	// benefit from WAL mode.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is the explicit transaction object named in spec.md §9, replacing
// the Python side's session_scope context manager.
type Tx struct {
	tx *sql.Tx
}

// InTransaction begins a transaction, runs fn, and commits on success or
// rolls back on any error fn returns (spec.md §4.2: "all multi-row
// operations execute within a single transaction").
func (s *Store) InTransaction(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(&Tx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}

// CreateItem inserts a new provenance row (spec.md §4.2).
func (tx *Tx) CreateItem(ctx context.Context, author, postID, sourceURL string) (int64, error) {
	res, err := tx.tx.ExecContext(ctx,
		`INSERT INTO items (author, post_id, source_url, saved_at) VALUES (?, ?, ?, ?)`,
		author, postID, nullableString(sourceURL), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("store: create item: %w", err)
	}
	return res.LastInsertId()
}

// UpsertAssetByHash returns the existing asset id for hash, inserting a
// new row if none exists yet. wasNew reports whether this call created the
// row (spec.md §4.2, §4.7 step 4).
func (tx *Tx) UpsertAssetByHash(ctx context.Context, hash, ext string, byteLength int64) (id int64, wasNew bool, err error) {
	row := tx.tx.QueryRowContext(ctx, `SELECT id FROM assets WHERE content_hash = ?`, hash)
	if scanErr := row.Scan(&id); scanErr == nil {
		return id, false, nil
	} else if scanErr != sql.ErrNoRows {
		return 0, false, fmt.Errorf("store: lookup asset: %w", scanErr)
	}

	res, err := tx.tx.ExecContext(ctx,
		`INSERT INTO assets (content_hash, extension, byte_length, created_at) VALUES (?, ?, ?, ?)`,
		hash, ext, byteLength, time.Now().UTC())
	if err != nil {
		return 0, false, fmt.Errorf("store: insert asset: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// InsertFile records a placed copy of an asset on disk, linked to the
// item that requested it (spec.md §4.2). itemID is 0 for files adopted
// from disk with no originating save request (spec.md §4.6 loose-image
// adoption, §6 repair), recorded as a NULL item_id.
func (tx *Tx) InsertFile(ctx context.Context, assetID, itemID int64, relativePath, folderName string, mtime time.Time) (int64, error) {
	res, err := tx.tx.ExecContext(ctx,
		`INSERT INTO files (asset_id, item_id, relative_path, folder_name, mtime) VALUES (?, ?, ?, ?, ?)`,
		assetID, nullableItemID(itemID), relativePath, folderName, mtime.UTC())
	if err != nil {
		return 0, fmt.Errorf("store: insert file: %w", err)
	}
	return res.LastInsertId()
}

// RenameFile updates a File row's path, folder and mtime after the
// underlying file has moved (spec.md §4.2). NormalizeFolder and the watcher
// do not call it; they record renamed files through TrackFile instead.
func (tx *Tx) RenameFile(ctx context.Context, oldRelativePath, newRelativePath, newFolderName string, mtime time.Time) error {
	_, err := tx.tx.ExecContext(ctx,
		`UPDATE files SET relative_path = ?, folder_name = ?, mtime = ? WHERE relative_path = ?`,
		newRelativePath, newFolderName, mtime.UTC(), oldRelativePath)
	if err != nil {
		return fmt.Errorf("store: rename file: %w", err)
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableItemID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
