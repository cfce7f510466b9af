// Package observe supervises the in-process background observers (cron,
// heartbeat, webhook, cleanup) with crash isolation. Grounded on
// golang.org/x/sync/errgroup, the concurrency primitive this module
// already carries for bounded fan-out.
package observe

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"
)

// Task is one supervised observer loop. It must itself honor ctx
// cancellation and return promptly when ctx is done.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
	// Restart, if true, causes the supervisor to relaunch Run after a panic
	// or error return instead of treating it as fatal to the group.
	Restart bool
}

// Supervisor runs a fixed set of observer tasks concurrently, isolating
// each from the others' panics/errors
type Supervisor struct {
	Logf func(format string, args ...any)
}

func New() *Supervisor {
	return &Supervisor{Logf: func(string, ...any) {}}
}

// Run launches every task and blocks until ctx is cancelled or a
// non-restartable task exits.
func (s *Supervisor) Run(ctx context.Context, tasks []Task) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		g.Go(func() error { return s.superviseOne(ctx, t) })
	}
	return g.Wait()
}

func (s *Supervisor) superviseOne(ctx context.Context, t Task) error {
	for {
		err := s.runOnce(ctx, t)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}
		s.Logf("observe: task %q terminated: %v", t.Name, err)
		if !t.Restart {
			return fmt.Errorf("observer %q: %w", t.Name, err)
		}
		// Run loops internally, so returning here means it exited early; it
		// is relaunched immediately, with no limit on the number of restarts.
	}
}

// runOnce invokes t.Run, converting a panic into an error so one bad
// observer cannot crash the process.
func (s *Supervisor) runOnce(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "observe: task %q panicked: %v\n", t.Name, r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(ctx)
}
