package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Solarigin/Like-Gallery/internal/api"
	"github.com/Solarigin/Like-Gallery/internal/config"
	"github.com/Solarigin/Like-Gallery/internal/download"
	"github.com/Solarigin/Like-Gallery/internal/exif"
	"github.com/Solarigin/Like-Gallery/internal/gallery"
	"github.com/Solarigin/Like-Gallery/internal/naming"
	"github.com/Solarigin/Like-Gallery/internal/store"
	"github.com/Solarigin/Like-Gallery/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the archiver daemon: HTTP save endpoint plus filesystem watcher",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfgStore, err := config.Open(configPath)
	if err != nil {
		return wrapConfigError(err)
	}
	cur := cfgStore.Get()

	if err := os.MkdirAll(cur.BaseDir, 0o755); err != nil {
		return wrapConfigError(err)
	}

	st, err := store.Open(filepath.Join(cur.BaseDir, "sia.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	exifReader := exif.GoExifReader{}
	namingEngine := naming.New(cur.BaseDir, exifReader)
	dl := download.New(log)
	indexer := gallery.New()

	if err := indexer.Rebuild(cmd.Context(), st, cur.BaseDir); err != nil {
		log.Warn("initial index rebuild failed", "err", err)
	}

	watchOpts := watcher.Options{
		BaseDir:        cur.BaseDir,
		ImageExts:      imageExtSet(cur.Download.AllowedContentTypes),
		SortMode:       naming.SortByName,
		ConflictPolicy: naming.ConflictDedup,
	}
	w, err := watcher.New(watchOpts, namingEngine, st, indexer, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	server := api.New(cfgStore, st, namingEngine, dl, indexer, log)
	return server.Run(ctx)
}

// imageExtSet derives the watcher's accepted extensions from the
// configured MIME allow-list (spec.md §4.6 "configured image set").
func imageExtSet(mimeTypes []string) map[string]struct{} {
	out := make(map[string]struct{}, len(mimeTypes))
	for _, m := range mimeTypes {
		switch m {
		case "image/jpeg":
			out["jpg"] = struct{}{}
			out["jpeg"] = struct{}{}
		case "image/png":
			out["png"] = struct{}{}
		case "image/gif":
			out["gif"] = struct{}{}
		case "image/webp":
			out["webp"] = struct{}{}
		}
	}
	return out
}
