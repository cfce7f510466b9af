package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type doc struct {
	Name  string
	Count int
}

func TestLoadOfMissingFileKeepsZeroValue(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing.json"), doc{Name: "default"})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	var got doc
	s.View(func(d doc) { got = d })
	if got.Name != "default" {
		t.Errorf("Name = %q, want default to survive a missing file", got.Name)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	s := New(path, doc{Name: "a", Count: 1})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2 := New(path, doc{})
	if err := s2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	var got doc
	s2.View(func(d doc) { got = d })
	if got.Name != "a" || got.Count != 1 {
		t.Errorf("got %+v, want {a 1}", got)
	}
}

func TestMutateLeavesValueUntouchedOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	s := New(path, doc{Name: "original"})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	wantErr := errors.New("boom")
	err := s.Mutate(func(d *doc) error {
		d.Name = "changed"
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Mutate error = %v, want %v", err, wantErr)
	}

	var got doc
	s.View(func(d doc) { got = d })
	if got.Name != "original" {
		t.Errorf("Name = %q, want original to survive a failed Mutate", got.Name)
	}
}

type mapDoc struct {
	Sessions map[string]string
}

func TestMutateLeavesMapFieldUntouchedOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapdoc.json")
	s := New(path, mapDoc{Sessions: map[string]string{"chat1": "original"}})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	wantErr := errors.New("boom")
	err := s.Mutate(func(d *mapDoc) error {
		d.Sessions["chat1"] = "changed in place"
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Mutate error = %v, want %v", err, wantErr)
	}

	var got mapDoc
	s.View(func(d mapDoc) { got = d })
	if got.Sessions["chat1"] != "original" {
		t.Errorf("Sessions[chat1] = %q, want original to survive an in-place map mutation followed by a failed Mutate", got.Sessions["chat1"])
	}
}

func TestMutatePersistsSuccessfulChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	s := New(path, doc{Name: "original"})

	if err := s.Mutate(func(d *doc) error {
		d.Name = "updated"
		return nil
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var onDisk doc
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if onDisk.Name != "updated" {
		t.Errorf("on-disk Name = %q, want updated", onDisk.Name)
	}
}

func TestWatcherFiresOnlyAfterMtimeAdvances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watched.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	w := &Watcher{Path: path, Interval: 20 * time.Millisecond}
	stop := make(chan struct{})
	fired := make(chan struct{}, 1)

	go w.Run(stop, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	defer close(stop)

	select {
	case <-fired:
		t.Fatal("Watcher must not fire before the file changes")
	case <-time.After(60 * time.Millisecond):
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("Watcher did not fire after the file's mtime advanced")
	}
}
