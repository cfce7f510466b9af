// Package lockfile implements the PID-singleton guard that reports an
// infrastructure error on a PID lock collision, grounded on
// core/internal/telegram/bot.go's flock.New(lockPath)/TryLock retry loop,
// generalized from a per-token lock to the single process-wide bot.pid
// lock of the workspace directory layout.
package lockfile

import (
	"time"

	"github.com/gofrs/flock"

	"github.com/arcrelay/bridge/internal/corerr"
)

// Lock wraps a gofrs/flock file lock on the process PID file.
type Lock struct {
	path string
	fl   *flock.Flock
}

// New returns a lock bound to path (the workspace's bot.pid file).
func New(path string) *Lock {
	return &Lock{path: path, fl: flock.New(path)}
}

// Acquire retries a non-blocking TryLock up to attempts times, sleeping
// interval after each failed try, before giving up.
func (l *Lock) Acquire(attempts int, interval time.Duration) error {
	var locked bool
	var err error
	for i := 0; i < attempts; i++ {
		locked, err = l.fl.TryLock()
		if locked || err != nil {
			break
		}
		time.Sleep(interval)
	}
	if err != nil {
		return corerr.Wrap(corerr.KindInfrastructure, "lockfile.Acquire", "flock error", err)
	}
	if !locked {
		return corerr.New(corerr.KindInfrastructure, "lockfile.Acquire", "pid lock held by another process: "+l.path)
	}
	return nil
}

// Release unlocks the PID file.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}
