// Package watcher observes base_dir for externally introduced files and
// normalizes them into the daemon's naming scheme (spec.md §4.6). Event
// plumbing (recursive fsnotify.Watcher, ignore patterns, debounce timer)
// is grounded on the teacher's services/trace/graph.FileWatcher; the
// stability-poll algorithm and loose-image/in-folder branching are
// grounded on core/watcher.py's Watcher._wait_stable and the
// on_created/on_moved dispatch in the original implementation.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Solarigin/Like-Gallery/internal/gallery"
	"github.com/Solarigin/Like-Gallery/internal/naming"
	"github.com/Solarigin/Like-Gallery/internal/store"
)

// ignoredDirs are system directory names skipped regardless of case
// (spec.md §4.6).
var ignoredDirs = map[string]struct{}{
	"$recycle.bin":               {},
	"system volume information":  {},
	".trash":                     {},
	"__pycache__":                {},
}

// Options configures a Watcher.
type Options struct {
	BaseDir        string
	ImageExts      map[string]struct{} // lowercase, no dot
	SortMode       naming.SortMode
	ConflictPolicy naming.ConflictPolicy
	DebounceWindow time.Duration // default 1s
	StabilityWait  time.Duration // default 1s
	StabilityTries int           // default 3
}

// Watcher monitors BaseDir recursively, waits for new files to stabilize,
// then routes them through the naming engine and refreshes the gallery
// index (spec.md §4.6).
type Watcher struct {
	opts    Options
	engine  *naming.Engine
	store   *store.Store
	indexer *gallery.Indexer
	log     *slog.Logger

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer // path -> debounce timer
	done    chan struct{}
	once    sync.Once
}

// New builds a Watcher. log may be nil.
func New(opts Options, engine *naming.Engine, st *store.Store, indexer *gallery.Indexer, log *slog.Logger) (*Watcher, error) {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = time.Second
	}
	if opts.StabilityWait <= 0 {
		opts.StabilityWait = time.Second
	}
	if opts.StabilityTries <= 0 {
		opts.StabilityTries = 3
	}
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		opts:    opts,
		engine:  engine,
		store:   st,
		indexer: indexer,
		log:     log,
		fsw:     fsw,
		pending: make(map[string]*time.Timer),
		done:    make(chan struct{}),
	}, nil
}

// Start recursively watches base_dir and processes events until ctx is
// canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.opts.BaseDir); err != nil {
		return err
	}
	go w.loop(ctx)
	return nil
}

// Stop releases the underlying fsnotify watcher.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.done)
		w.fsw.Close()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnoreDir(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) shouldIgnoreDir(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasPrefix(base, ".") && path != w.opts.BaseDir {
		return true
	}
	_, ignored := ignoredDirs[base]
	return ignored
}

func (w *Watcher) shouldIgnoreFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return true
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	if len(w.opts.ImageExts) == 0 {
		return false
	}
	_, ok := w.opts.ImageExts[ext]
	return !ok
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				if !w.shouldIgnoreDir(ev.Name) {
					w.fsw.Add(ev.Name)
				}
				continue
			}
			if w.shouldIgnoreFile(ev.Name) {
				continue
			}
			w.debounce(ctx, ev.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "err", err)
		}
	}
}

// debounce collapses repeated events for the same path within the
// stability window into a single schedule call (spec.md §4.6
// "Debouncing").
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.opts.DebounceWindow, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.handleStablePath(ctx, path)
	})
}

// handleStablePath waits for path to stop growing, then routes it
// through the naming engine (spec.md §4.6 "Stability check", "Action
// per stable event").
func (w *Watcher) handleStablePath(ctx context.Context, path string) {
	if !w.waitStable(path) {
		return
	}

	folder := filepath.Dir(path)
	if folder == w.opts.BaseDir {
		w.handleLooseImage(ctx, path)
		return
	}
	w.normalizeAndRefresh(ctx, filepath.Base(folder), folder)
}

// waitStable polls path's size at StabilityWait intervals up to
// StabilityTries times, requiring two consecutive equal sizes
// (spec.md §4.6).
func (w *Watcher) waitStable(path string) bool {
	prevSize := int64(-1)
	for i := 0; i < w.opts.StabilityTries; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		size := info.Size()
		if size == prevSize {
			return true
		}
		prevSize = size
		time.Sleep(w.opts.StabilityWait)
	}
	return false
}

// handleLooseImage moves a file sitting directly in base_dir into a
// freshly allocated author folder using its filename stem as the
// author candidate, then normalizes that folder (spec.md §4.6).
func (w *Watcher) handleLooseImage(ctx context.Context, path string) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	folderName, folderPath, err := w.engine.ResolveAuthorFolder(stem)
	if err != nil {
		w.log.Warn("watcher: resolve folder for loose image", "path", path, "err", err)
		return
	}

	dest := filepath.Join(folderPath, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		w.log.Warn("watcher: move loose image", "path", path, "err", err)
		return
	}

	w.normalizeAndRefresh(ctx, folderName, folderPath)
}

func (w *Watcher) normalizeAndRefresh(ctx context.Context, folderName, folderPath string) {
	if _, err := w.engine.NormalizeFolder(folderName, folderPath, w.opts.SortMode, w.opts.ConflictPolicy); err != nil {
		w.log.Warn("watcher: normalize folder", "folder", folderPath, "err", err)
		return
	}
	if err := w.trackFolderFiles(ctx, folderName, folderPath); err != nil {
		w.log.Warn("watcher: track folder files", "folder", folderPath, "err", err)
	}
	if err := w.indexer.Rebuild(ctx, w.store, w.opts.BaseDir); err != nil {
		w.log.Warn("watcher: rebuild index", "err", err)
	}
}

// trackFolderFiles ensures every image file now sitting in folderPath has
// a File row, hashing and inserting one for any that normalization just
// renamed into place without a store record (spec.md §4.2 invariant
// "every file on disk has a matching File row").
func (w *Watcher) trackFolderFiles(ctx context.Context, folderName, folderPath string) error {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return fmt.Errorf("watcher: read folder %s: %w", folderPath, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || w.shouldIgnoreFile(entry.Name()) {
			continue
		}
		abs := filepath.Join(folderPath, entry.Name())
		rel := filepath.ToSlash(filepath.Join(folderName, entry.Name()))
		if err := w.store.TrackFile(ctx, abs, rel, folderName); err != nil {
			return err
		}
	}
	return nil
}
