// Package lock provides a keyed mutex table: named, reference-counted
// locks that vanish once idle. Adapted from the teacher's
// services/trace/lock.FileLockManager, which guards a map of named lock
// entries behind a single sync.Mutex; this version drops the advisory
// OS-level file locking (cross-process use is out of scope, see spec.md
// §9 Open Questions) and keeps the in-process keyed-mutex discipline that
// spec.md §5 requires for folder-index allocation.
package lock

import "sync"

type entry struct {
	mu       sync.Mutex
	refCount int
}

// Table is a map of named mutexes. Acquire a key, defer the returned
// release func, and entries with no remaining holders are dropped so the
// table never grows without bound.
type Table struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewTable returns a ready, empty Table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*entry)}
}

// Lock blocks until the named lock is held and returns a release func.
// Callers must call the returned func exactly once, typically via defer.
func (t *Table) Lock(key string) func() {
	t.mu.Lock()
	e, ok := t.entries[key]
	if !ok {
		e = &entry{}
		t.entries[key] = e
	}
	e.refCount++
	t.mu.Unlock()

	e.mu.Lock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		e.mu.Unlock()

		t.mu.Lock()
		e.refCount--
		if e.refCount == 0 {
			delete(t.entries, key)
		}
		t.mu.Unlock()
	}
}
