// Package exif provides the naming engine's optional EXIF-aware sort
// capability (spec.md §4.4, §9 "Optional EXIF extraction"). The naming
// engine depends on the Reader interface, not on this package's concrete
// implementation, so the core still builds and runs correctly against
// NoopReader without any image-parsing library.
package exif

import (
	"os"
	"time"

	goexif "github.com/rwcarlsen/goexif/exif"
)

// Reader extracts the "photo taken at" timestamp from an image file, the
// same field Perkeep's pkg/schema derives via rwcarlsen/goexif when
// importing photos.
type Reader interface {
	// TakenAt returns the embedded capture time for path. ok is false when
	// no EXIF timestamp is present or readable, in which case callers must
	// fall back to the file's mtime (spec.md §4.4).
	TakenAt(path string) (t time.Time, ok bool)
}

// NoopReader always reports "unknown", the default implementation named
// in spec.md §9 so the naming engine can run without goexif wired in.
type NoopReader struct{}

func (NoopReader) TakenAt(string) (time.Time, bool) { return time.Time{}, false }

// GoExifReader reads EXIF DateTimeOriginal via rwcarlsen/goexif.
type GoExifReader struct{}

func (GoExifReader) TakenAt(path string) (time.Time, bool) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, false
	}
	defer f.Close()

	x, err := goexif.Decode(f)
	if err != nil {
		return time.Time{}, false
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
