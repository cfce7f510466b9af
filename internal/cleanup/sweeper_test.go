package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweepOneRemovesOnlyAgedFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old.txt")
	newPath := filepath.Join(dir, "new.txt")
	if err := os.WriteFile(oldPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write old: %v", err)
	}
	if err := os.WriteFile(newPath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write new: %v", err)
	}

	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	s := New([]Target{{Dir: dir, RetentionDays: 1}}, time.UTC, 4)
	s.sweepOne(Target{Dir: dir, RetentionDays: 1}, time.Now())

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expected aged file to be removed")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Error("expected fresh file to survive")
	}
}

func TestSweepOneSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "subdir")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(sub, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	s := New([]Target{{Dir: dir, RetentionDays: 1}}, time.UTC, 4)
	s.sweepOne(Target{Dir: dir, RetentionDays: 1}, time.Now())

	if _, err := os.Stat(sub); err != nil {
		t.Error("expected subdirectory to survive a top-level-only sweep")
	}
}

func TestSweepOneLogsAndContinuesOnMissingDir(t *testing.T) {
	var logged []string
	s := New(nil, time.UTC, 4)
	s.Logf = func(format string, args ...any) { logged = append(logged, format) }

	s.sweepOne(Target{Dir: filepath.Join(t.TempDir(), "does-not-exist"), RetentionDays: 1}, time.Now())

	if len(logged) == 0 {
		t.Error("expected a log line for the unreadable directory, got none")
	}
}
