// Package naming implements the deterministic folder/file numbering
// scheme described in spec.md §4.4: author-folder resolution, per-folder
// index reservation, and normalization of externally introduced files.
// Grounded on server/api.py's resolve_author_folder/_next_folder_index/
// _current_max_index and core/renamer.py's scan_directory/apply, with the
// per-folder serialization discipline adapted from the teacher's
// services/trace/lock keyed-mutex idiom (internal/lock).
package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Solarigin/Like-Gallery/internal/exif"
	"github.com/Solarigin/Like-Gallery/internal/lock"
)

var (
	unsafeChars  = regexp.MustCompile(`[^A-Za-z0-9_-]`)
	folderNameRe = regexp.MustCompile(`^(\d{5})_(.+)$`)
	fileIndexRe  = regexp.MustCompile(`_(\d{3})$`)
)

// allocKey is the single well-known lock key guarding base_dir's folder
// scan+mkdir critical section (spec.md §4.4/§5).
const allocKey = "\x00folder-alloc"

// SortMode controls how NormalizeFolder orders non-conforming files
// before assigning indices (spec.md §4.4).
type SortMode int

const (
	SortByName SortMode = iota
	SortByMtime
	SortByExifTakenAt
)

// ConflictPolicy controls NormalizeFolder's behavior when a rename target
// already exists at commit time (spec.md §4.4).
type ConflictPolicy int

const (
	ConflictSkip ConflictPolicy = iota
	ConflictDedup
)

// Engine is the naming engine. One Engine is shared by the save endpoint,
// the watcher, and the repair CLI.
type Engine struct {
	baseDir string
	locks   *lock.Table
	exif    exif.Reader
}

// New builds an Engine rooted at baseDir. exifReader may be nil, in which
// case exif.NoopReader{} is used (spec.md §9 capability redesign).
func New(baseDir string, exifReader exif.Reader) *Engine {
	if exifReader == nil {
		exifReader = exif.NoopReader{}
	}
	return &Engine{baseDir: baseDir, locks: lock.NewTable(), exif: exifReader}
}

// SafeAuthor replaces every character outside [A-Za-z0-9_-] with '_'
// (spec.md §3 "Author folder").
func SafeAuthor(author string) string {
	return unsafeChars.ReplaceAllString(author, "_")
}

// ResolveAuthorFolder implements spec.md §4.4: find the existing folder
// for author, or allocate and create the next one. It returns the
// folder's basename (e.g. "00001_alice") and its absolute path.
func (e *Engine) ResolveAuthorFolder(author string) (name, path string, err error) {
	safe := SafeAuthor(author)

	release := e.locks.Lock(allocKey)
	defer release()

	if err := os.MkdirAll(e.baseDir, 0o755); err != nil {
		return "", "", fmt.Errorf("naming: mkdir base_dir: %w", err)
	}

	entries, err := os.ReadDir(e.baseDir)
	if err != nil {
		return "", "", fmt.Errorf("naming: read base_dir: %w", err)
	}

	maxIdx := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		m := folderNameRe.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if m[2] == safe {
			return entry.Name(), filepath.Join(e.baseDir, entry.Name()), nil
		}
		if idx, err := strconv.Atoi(m[1]); err == nil && idx > maxIdx {
			maxIdx = idx
		}
	}

	name = fmt.Sprintf("%05d_%s", maxIdx+1, safe)
	path = filepath.Join(e.baseDir, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", "", fmt.Errorf("naming: create folder %s: %w", path, err)
	}
	return name, path, nil
}

// ReserveIndices allocates count sequential, never-reused file indices
// within folderPath (spec.md §4.4). It pre-creates empty placeholder
// files at each reserved name so the per-folder lock can be released
// before downloads run, per the implementation option spec.md describes.
func (e *Engine) ReserveIndices(folderName, folderPath string, count int, ext []string) ([]int, []string, error) {
	release := e.locks.Lock(folderPath)
	defer release()

	maxIdx, err := e.maxIndexLocked(folderName, folderPath)
	if err != nil {
		return nil, nil, err
	}

	indices := make([]int, count)
	paths := make([]string, count)
	for i := 0; i < count; i++ {
		idx := maxIdx + 1 + i
		indices[i] = idx
		extension := "placeholder"
		if i < len(ext) && ext[i] != "" {
			extension = ext[i]
		}
		name := fmt.Sprintf("%s_%03d.%s", folderName, idx, extension)
		path := filepath.Join(folderPath, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("naming: reserve placeholder %s: %w", path, err)
		}
		f.Close()
		paths[i] = path
	}
	return indices, paths, nil
}

func (e *Engine) maxIndexLocked(folderName, folderPath string) (int, error) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("naming: read folder %s: %w", folderPath, err)
	}
	max := 0
	prefix := folderName + "_"
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		m := fileIndexRe.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		if idx, err := strconv.Atoi(m[1]); err == nil && idx > max {
			max = idx
		}
	}
	return max, nil
}

// IndexedName returns the canonical on-disk filename for the given index
// and extension within folderName (spec.md §3 "File naming within a
// folder").
func IndexedName(folderName string, index int, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return fmt.Sprintf("%s_%03d.%s", folderName, index, ext)
}

// sortableFile pairs a directory entry with the attribute its SortMode
// will compare on.
type sortableFile struct {
	path string
	name string
	key  any
}

func sortFiles(files []sortableFile, mode SortMode) {
	sort.SliceStable(files, func(i, j int) bool {
		switch mode {
		case SortByMtime, SortByExifTakenAt:
			ti, _ := files[i].key.(int64)
			tj, _ := files[j].key.(int64)
			return ti < tj
		default:
			return files[i].name < files[j].name
		}
	})
}
