// Package store provides the generic atomic-JSON-file persistence pattern
// used by sessions.json, cron_jobs.json and webhooks.json (config.json is
// written by internal/config through renameio directly):
// load, mutate-under-lock, save-atomically, and an mtime-based external
// change watcher.
package store

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/google/renameio/v2"

	"github.com/arcrelay/bridge/internal/corerr"
)

// Store guards an in-memory value of type T, persisted atomically to Path.
type Store[T any] struct {
	Path string

	mu   sync.Mutex
	data T
}

// New creates a Store with the given zero/default value; callers should
// follow with Load to populate it from disk if the file exists.
func New[T any](path string, zero T) *Store[T] {
	return &Store[T]{Path: path, data: zero}
}

// Load reads Path into the in-memory value. A missing file is not an
// error: the zero value supplied to New is kept.
func (s *Store[T]) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return corerr.Wrap(corerr.KindSession, "store.Load", "read "+s.Path, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return corerr.Wrap(corerr.KindSession, "store.Load", "parse "+s.Path, err)
	}
	s.data = v
	return nil
}

// Save atomically persists the current in-memory value via
// temp-file-then-rename: a crash during the write leaves either the old
// file intact or the new file fully written, never a partial one.
func (s *Store[T]) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store[T]) saveLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return corerr.Wrap(corerr.KindInfrastructure, "store.Save", "marshal "+s.Path, err)
	}
	if err := renameio.WriteFile(s.Path, raw, 0o644); err != nil {
		return corerr.Wrap(corerr.KindInfrastructure, "store.Save", "atomic write "+s.Path, err)
	}
	return nil
}

// View runs fn with a read-only snapshot-safe reference to the current
// value (the mutex is held for fn's duration; fn must not call back into
// the same Store).
func (s *Store[T]) View(fn func(T)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// Mutate runs fn against a deep copy of the in-memory value and persists
// the result. If fn returns an error, or if the subsequent save fails, the
// in-memory value is left exactly as it was: a persistence failure aborts
// the in-memory change too. fn operates on its own copy rather than
// s.data directly, so a T holding maps or slices that fn mutates in place
// can't leak a partial change into the store on failure.
func (s *Store[T]) Mutate(fn func(*T) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working, err := deepCopy(s.data)
	if err != nil {
		return corerr.Wrap(corerr.KindInfrastructure, "store.Mutate", "snapshot "+s.Path, err)
	}
	if err := fn(&working); err != nil {
		return err
	}
	before := s.data
	s.data = working
	if err := s.saveLocked(); err != nil {
		s.data = before
		return err
	}
	return nil
}

// deepCopy round-trips v through JSON, the same encoding the store
// already persists with, to produce an independent copy free of shared
// map/slice backing arrays.
func deepCopy[T any](v T) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

// Watcher polls a file's mtime on a fixed interval and invokes onChange
// when it advances, for detecting external edits to files such as
// cron_jobs.json or webhooks.json.
type Watcher struct {
	Path     string
	Interval time.Duration

	last time.Time
}

// Run blocks, polling until stop is closed.
func (w *Watcher) Run(stop <-chan struct{}, onChange func()) {
	if w.Interval <= 0 {
		w.Interval = 5 * time.Second
	}
	if info, err := os.Stat(w.Path); err == nil {
		w.last = info.ModTime()
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			info, err := os.Stat(w.Path)
			if err != nil {
				continue
			}
			if info.ModTime().After(w.last) {
				w.last = info.ModTime()
				onChange()
			}
		}
	}
}
