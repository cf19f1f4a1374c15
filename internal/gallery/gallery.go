// Package gallery derives images.json from the metadata store (spec.md
// §4.5). Grounded on core/indexer.py's build_index: full scan, sorted by
// mtime descending, written atomically so readers never observe a
// partial file.
package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Solarigin/Like-Gallery/internal/store"
)

// Entry is one row of the derived manifest (spec.md §3 "Derived index").
type Entry struct {
	Path   string `json:"path"`
	Folder string `json:"folder"`
	Name   string `json:"name"`
	Mtime  int64  `json:"mtime"`
	PostID string `json:"post_id,omitempty"`
	Source string `json:"source,omitempty"`
}

// Indexer rebuilds images.json from the metadata store.
type Indexer struct{}

// New returns a ready Indexer.
func New() *Indexer { return &Indexer{} }

func manifestPath(baseDir string) string {
	return filepath.Join(baseDir, "images.json")
}

// Rebuild reads every File row (joined with its Item) from s, sorted by
// mtime descending, and writes images.json atomically. Safe to call
// concurrently with readers: the write lands via temp-file-then-rename,
// so a GET never observes a half-written file (spec.md §4.5, §5).
func (g *Indexer) Rebuild(ctx context.Context, s *store.Store, baseDir string) error {
	rows, err := s.ListFiles(ctx, store.ListFilter{})
	if err != nil {
		return fmt.Errorf("gallery: list files: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{
			Path:   r.RelativePath,
			Folder: r.FolderName,
			Name:   filepath.Base(r.RelativePath),
			Mtime:  r.Mtime.Unix(),
			PostID: r.PostID,
			Source: r.SourceURL,
		})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("gallery: marshal manifest: %w", err)
	}

	path := manifestPath(baseDir)
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return fmt.Errorf("gallery: mkdir base_dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("gallery: write temp manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("gallery: commit manifest: %w", err)
	}
	return nil
}

// ReadOrInit returns the current images.json contents, writing an empty
// array first if the file does not yet exist (spec.md §4.8 GET
// /images.json).
func ReadOrInit(baseDir string) ([]byte, error) {
	path := manifestPath(baseDir)
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("gallery: read manifest: %w", err)
	}
	if mkErr := os.MkdirAll(baseDir, 0o755); mkErr != nil {
		return nil, fmt.Errorf("gallery: mkdir base_dir: %w", mkErr)
	}
	empty := []byte("[]")
	if err := os.WriteFile(path, empty, 0o644); err != nil {
		return nil, fmt.Errorf("gallery: write empty manifest: %w", err)
	}
	return empty, nil
}
