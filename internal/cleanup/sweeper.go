// Package cleanup implements the daily file-retention sweeper: hourly wake,
// once-per-day top-level-only deletion from a configured set of workspace
// directories. Grounded on the core/internal/paths package for directory
// layout conventions (that package itself has no retention logic — this
// loop is new).
package cleanup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Target is one swept directory with its own retention window.
type Target struct {
	Dir           string
	RetentionDays int
}

// Sweeper runs the hourly wake / once-daily sweep loop.
type Sweeper struct {
	Targets   []Target
	Timezone  *time.Location
	CheckHour int

	lastRunDay string
	Logf       func(format string, args ...any)
}

func New(targets []Target, tz *time.Location, checkHour int) *Sweeper {
	return &Sweeper{Targets: targets, Timezone: tz, CheckHour: checkHour, Logf: func(string, ...any) {}}
}

// Run blocks, waking hourly until stop is closed.
func (s *Sweeper) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	s.tick()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sweeper) tick() {
	loc := s.Timezone
	if loc == nil {
		loc = time.Local
	}
	now := time.Now().In(loc)
	if now.Hour() != s.CheckHour {
		return
	}
	today := now.Format("2006-01-02")
	if s.lastRunDay == today {
		return
	}
	s.sweepAll(now)
	s.lastRunDay = today
}

func (s *Sweeper) sweepAll(now time.Time) {
	for _, t := range s.Targets {
		s.sweepOne(t, now)
	}
}

// sweepOne walks one directory's top level only (no recursion into
// subdirectories), unlinking files whose mtime age exceeds the configured
// retention. Per-file errors are logged and do not abort the pass.
func (s *Sweeper) sweepOne(t Target, now time.Time) {
	entries, err := os.ReadDir(t.Dir)
	if err != nil {
		s.Logf("cleanup: reading %s: %v", t.Dir, err)
		return
	}
	cutoff := now.Add(-time.Duration(t.RetentionDays) * 24 * time.Hour)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.Logf("cleanup: stat %s: %v", entry.Name(), err)
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(t.Dir, entry.Name())
		if err := os.Remove(path); err != nil {
			s.Logf("cleanup: removing %s: %v", path, err)
			continue
		}
		s.Logf("cleanup: removed %s (age %s)", path, fmt.Sprintf("%.0fh", now.Sub(info.ModTime()).Hours()))
	}
}
