// Package cache persists the client's view of which patches have been
// applied, as a single JSON file guarded by an advisory file lock.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// LocalCache is the on-disk record of patch-application progress.
type LocalCache struct {
	LastPatchID       uint32            `json:"lastPatchId"`
	InstalledPatches  []uint32          `json:"installedPatches"`
	ContainerVersions map[string]string `json:"grfVersions"`
	LastCheck         string            `json:"lastCheck"`
}

func defaultCache() LocalCache {
	return LocalCache{
		InstalledPatches:  []uint32{},
		ContainerVersions: map[string]string{},
		LastCheck:         time.Now().UTC().Format(time.RFC3339),
	}
}

// HasInstalled reports whether patchIndex is already recorded as applied.
func (c LocalCache) HasInstalled(patchIndex uint32) bool {
	for _, idx := range c.InstalledPatches {
		if idx == patchIndex {
			return true
		}
	}
	return false
}

// MarkInstalled appends patchIndex to InstalledPatches and advances
// LastPatchID if it is the new highest index seen.
func (c *LocalCache) MarkInstalled(patchIndex uint32) {
	if c.HasInstalled(patchIndex) {
		return
	}
	c.InstalledPatches = append(c.InstalledPatches, patchIndex)
	if patchIndex > c.LastPatchID {
		c.LastPatchID = patchIndex
	}
}

// Store guards one LocalCache JSON file with a sibling ".lock" advisory
// lock, so multiple client processes never interleave writes.
type Store struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

// NewStore returns a Store rooted at path. The parent directory is
// created on first Save if missing.
func NewStore(path string) *Store {
	return &Store{path: path, lock: flock.New(path + ".lock")}
}

// Load reads the cache file, returning a zero-value default when it
// does not yet exist or fails to parse (mirrors the reference client's
// "missing or corrupt cache means start fresh" behavior).
func (s *Store) Load() (LocalCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return LocalCache{}, fmt.Errorf("cache: lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	return s.loadUnlocked()
}

func (s *Store) loadUnlocked() (LocalCache, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultCache(), nil
		}
		return defaultCache(), nil // corrupt/unreadable cache: start fresh rather than fail the run
	}

	var c LocalCache
	if err := json.Unmarshal(b, &c); err != nil {
		return defaultCache(), nil
	}
	if c.ContainerVersions == nil {
		c.ContainerVersions = map[string]string{}
	}
	return c, nil
}

// Save writes cache atomically: a temp file in the same directory,
// fsync'd, then renamed over the destination.
func (s *Store) Save(c LocalCache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("cache: lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	return s.saveUnlocked(c)
}

func (s *Store) saveUnlocked(c LocalCache) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cache: create dir: %w", err)
	}

	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	b = append(b, '\n')

	return atomicWriteFile(s.path, b, 0o644)
}

// Update loads, mutates via fn, and saves the cache under a single lock
// hold, so a read-modify-write cycle cannot race with another process.
func (s *Store) Update(fn func(*LocalCache) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("cache: lock: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	c, err := s.loadUnlocked()
	if err != nil {
		return err
	}
	if err := fn(&c); err != nil {
		return err
	}
	return s.saveUnlocked(c)
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if err := f.Chmod(perm); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache: chmod temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("cache: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("cache: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("cache: rename into place: %w", err)
	}
	return nil
}
