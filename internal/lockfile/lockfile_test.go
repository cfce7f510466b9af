package lockfile

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.pid")
	l := New(path)
	if err := l.Acquire(5, 10*time.Millisecond); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
}

func TestAcquireFailsWhenAlreadyHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.pid")

	first := New(path)
	if err := first.Acquire(5, 10*time.Millisecond); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	defer first.Release()

	second := New(path)
	if err := second.Acquire(3, 10*time.Millisecond); err == nil {
		t.Error("expected second Acquire to fail while the first lock is held")
	}
}
