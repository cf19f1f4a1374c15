// The repair subcommand is a one-shot pass over an existing base_dir: it
// normalizes every author folder and reconciles the metadata store
// against what is actually on disk. Grounded on
// integration/repair_wizard.py's preview/execute pair, which itself
// wraps core/renamer.py's scan_directory/apply.
package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Solarigin/Like-Gallery/internal/config"
	"github.com/Solarigin/Like-Gallery/internal/exif"
	"github.com/Solarigin/Like-Gallery/internal/gallery"
	"github.com/Solarigin/Like-Gallery/internal/naming"
	"github.com/Solarigin/Like-Gallery/internal/store"
)

var repairDryRun bool

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Normalize every author folder under base_dir and reconcile the metadata store",
	RunE:  runRepair,
}

func init() {
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "report what would change without renaming or touching the store")
}

func runRepair(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfgStore, err := config.Open(configPath)
	if err != nil {
		return wrapConfigError(err)
	}
	cur := cfgStore.Get()

	entries, err := os.ReadDir(cur.BaseDir)
	if err != nil {
		return err
	}

	namingEngine := naming.New(cur.BaseDir, exif.GoExifReader{})

	var folders []string
	for _, entry := range entries {
		if entry.IsDir() {
			folders = append(folders, entry.Name())
		}
	}

	if repairDryRun {
		for _, f := range folders {
			log.Info("would normalize", "folder", f)
		}
		return nil
	}

	for _, f := range folders {
		folderPath := filepath.Join(cur.BaseDir, f)
		renamed, err := namingEngine.NormalizeFolder(f, folderPath, naming.SortByName, naming.ConflictDedup)
		if err != nil {
			log.Warn("normalize failed", "folder", f, "err", err)
			continue
		}
		log.Info("normalized folder", "folder", f, "renamed", len(renamed))
	}

	st, err := store.Open(filepath.Join(cur.BaseDir, "sia.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	imageExts := imageExtSet(cur.Download.AllowedContentTypes)

	existing := make(map[string]struct{})
	var trackErr error
	_ = filepath.WalkDir(cur.BaseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(cur.BaseDir, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		existing[rel] = struct{}{}

		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
		if _, ok := imageExts[ext]; !ok {
			return nil
		}
		folderName := filepath.Base(filepath.Dir(path))
		if err := st.TrackFile(ctx, path, rel, folderName); err != nil {
			trackErr = err
			return filepath.SkipAll
		}
		return nil
	})
	if trackErr != nil {
		return trackErr
	}

	deleted, err := st.Reconcile(ctx, existing)
	if err != nil {
		return err
	}
	log.Info("reconciled metadata store", "stale_rows_removed", deleted)

	indexer := gallery.New()
	if err := indexer.Rebuild(ctx, st, cur.BaseDir); err != nil {
		return err
	}
	log.Info("rebuilt images.json")
	return nil
}
