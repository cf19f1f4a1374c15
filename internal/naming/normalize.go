package naming

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Solarigin/Like-Gallery/internal/exif"
)

// canonicalFileRe matches an already-canonical file within folderName:
// "<folderName>_<NNN>.<ext>".
func canonicalFileRe(folderName string) func(name string) (idx int, ok bool) {
	prefix := folderName + "_"
	return func(name string) (int, bool) {
		if !strings.HasPrefix(name, prefix) {
			return 0, false
		}
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		m := fileIndexRe.FindStringSubmatch(stem)
		if m == nil || stem != prefix+m[1] {
			return 0, false
		}
		var idx int
		if _, err := fmt.Sscanf(m[1], "%03d", &idx); err != nil {
			return 0, false
		}
		return idx, true
	}
}

// NormalizeFolder renames every non-conforming file in folderPath to the
// canonical "<folderName>_<NNN>.<ext>" scheme while preserving the
// indices of files that already conform (spec.md §4.4). Renames go
// through a ".__renametmp__" intermediate so a cycle among the target
// names (a renames into b's old name while b renames into a's) can never
// collide mid-pass. Returns the set of (oldPath -> newPath) renames
// actually performed, as absolute paths.
func (e *Engine) NormalizeFolder(folderName, folderPath string, mode SortMode, conflict ConflictPolicy) (map[string]string, error) {
	release := e.locks.Lock(folderPath)
	defer release()

	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return nil, fmt.Errorf("naming: read folder %s: %w", folderPath, err)
	}

	isCanonical := canonicalFileRe(folderName)

	maxIdx := 0
	var pending []sortableFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if idx, ok := isCanonical(name); ok {
			if idx > maxIdx {
				maxIdx = idx
			}
			continue
		}
		full := filepath.Join(folderPath, name)
		key := sortKey(full, mode, e.exif)
		pending = append(pending, sortableFile{path: full, name: name, key: key})
	}
	sortFiles(pending, mode)

	// Phase 1: move every non-conforming file to a temp name so no target
	// name collides with a source name still waiting to move.
	type move struct {
		tmpPath   string
		finalName string
		origPath  string
	}
	moves := make([]move, 0, len(pending))
	for i, pf := range pending {
		idx := maxIdx + 1 + i
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(pf.name), "."))
		if ext == "" {
			ext = "jpg"
		}
		finalName := IndexedName(folderName, idx, ext)
		tmpPath := filepath.Join(folderPath, fmt.Sprintf(".__renametmp__.%d", i))
		if err := os.Rename(pf.path, tmpPath); err != nil {
			return nil, fmt.Errorf("naming: stage rename %s: %w", pf.path, err)
		}
		moves = append(moves, move{tmpPath: tmpPath, finalName: finalName, origPath: pf.path})
	}

	renamed := make(map[string]string, len(moves))
	for _, mv := range moves {
		target := filepath.Join(folderPath, mv.finalName)
		final, err := resolveConflict(target, conflict)
		if err != nil {
			return nil, err
		}
		if err := os.Rename(mv.tmpPath, final); err != nil {
			return nil, fmt.Errorf("naming: commit rename %s: %w", mv.tmpPath, err)
		}
		renamed[mv.origPath] = final
	}
	return renamed, nil
}

// resolveConflict returns the path to actually rename into, applying the
// configured conflict policy when target already exists (spec.md §4.4).
func resolveConflict(target string, policy ConflictPolicy) (string, error) {
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return target, nil
	}
	dir := filepath.Dir(target)
	base := filepath.Base(target)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	switch policy {
	case ConflictSkip:
		for k := 1; ; k++ {
			candidate := filepath.Join(dir, fmt.Sprintf("%s_keep%d%s", stem, k, ext))
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				return candidate, nil
			}
		}
	default: // ConflictDedup
		for k := 1; ; k++ {
			candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, k, ext))
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				return candidate, nil
			}
		}
	}
}

// AdoptUnnumberedFolder renames a directory not matching "^\d{5}_" to
// "<next:05d>_<stripped basename>" and normalizes it (spec.md §4.4
// "Unnumbered folder adoption").
func (e *Engine) AdoptUnnumberedFolder(folderPath string) (newName, newPath string, err error) {
	release := e.locks.Lock(allocKey)
	base := filepath.Base(folderPath)
	stripped := stripLeadingIndices(base)

	entries, err := os.ReadDir(e.baseDir)
	if err != nil {
		release()
		return "", "", fmt.Errorf("naming: read base_dir: %w", err)
	}
	maxIdx := 0
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == base {
			continue
		}
		if m := folderNameRe.FindStringSubmatch(entry.Name()); m != nil {
			var idx int
			fmt.Sscanf(m[1], "%05d", &idx)
			if idx > maxIdx {
				maxIdx = idx
			}
		}
	}
	newName = fmt.Sprintf("%05d_%s", maxIdx+1, stripped)
	newPath = filepath.Join(e.baseDir, newName)
	if err := os.Rename(folderPath, newPath); err != nil {
		release()
		return "", "", fmt.Errorf("naming: adopt rename %s: %w", folderPath, err)
	}
	release()

	if _, err := e.NormalizeFolder(newName, newPath, SortByName, ConflictDedup); err != nil {
		return newName, newPath, err
	}
	return newName, newPath, nil
}

func stripLeadingIndices(base string) string {
	for {
		m := folderNameRe.FindStringSubmatch(base)
		if m == nil {
			return base
		}
		base = m[2]
	}
}

// sortKey returns the comparison key for mode: Unix seconds of mtime, or
// of the EXIF capture time when mode is SortByExifTakenAt and a reader
// provides one, falling back to mtime otherwise (spec.md §4.4).
func sortKey(path string, mode SortMode, reader exif.Reader) int64 {
	if mode == SortByExifTakenAt {
		if t, ok := reader.TakenAt(path); ok {
			return t.Unix()
		}
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().Unix()
}
