package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// ListenerHandle identifies a registered change listener so it can later
// be unregistered. This replaces the teacher's append-only listener slice
// with an explicit, revocable registry (spec.md §9).
type ListenerHandle uint64

// Store owns a Config value on disk and in memory. It is safe for
// concurrent use: reads go through an atomic.Value so hot paths (the
// watcher, the HTTP server) never block on a mutex just to read the
// current config.
type Store struct {
	path string

	current atomic.Value // Config

	mu         sync.Mutex
	nextHandle ListenerHandle
	listeners  map[ListenerHandle]func(Config)
}

// Open loads the config at path (or the default path if path is empty),
// materializing defaults on first run, and returns a ready Store.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("config: resolve default path: %w", err)
		}
		path = p
	}

	s := &Store{
		path:      path,
		listeners: make(map[ListenerHandle]func(Config)),
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.writeFile(Default()); err != nil {
			return nil, fmt.Errorf("config: materialize defaults: %w", err)
		}
		s.current.Store(Default())
		return s, nil
	}

	cfg, err := readFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	s.current.Store(cfg)
	return s, nil
}

// Get returns the current in-memory config. Cheap and lock-free.
func (s *Store) Get() Config {
	return s.current.Load().(Config)
}

// Save persists cfg atomically (write-temp, rename) and notifies every
// registered listener. Save serializes with other Save calls so the
// temp-file dance never races itself.
func (s *Store) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(cfg); err != nil {
		return err
	}
	s.current.Store(cfg)
	s.notifyLocked(cfg)
	return nil
}

// AddListener registers callback to run after every successful Save and
// returns a handle that can later be passed to RemoveListener.
func (s *Store) AddListener(callback func(Config)) ListenerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHandle++
	h := s.nextHandle
	s.listeners[h] = callback
	return h
}

// RemoveListener unregisters a listener previously returned by AddListener.
func (s *Store) RemoveListener(h ListenerHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, h)
}

func (s *Store) notifyLocked(cfg Config) {
	for _, cb := range s.listeners {
		cb(cfg)
	}
}

func (s *Store) writeFile(cfg Config) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename temp config into place: %w", err)
	}
	return nil
}

func readFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	return cfg, nil
}
