package provider

import (
	"os/exec"
	"sync"
	"time"
)

// process is one registered spawn: chat id, label, OS handle, registration
// time.
type process struct {
	chatKey       string
	label         string
	cmd           *exec.Cmd
	registeredAt  time.Time
}

// Registry is the one mutex-guarded map of live subprocesses plus the
// per-chat aborted flags.
type Registry struct {
	mu       sync.Mutex
	procs    map[string][]*process // keyed by chatKey
	aborted  map[string]bool

	// GracePeriod is how long kill-all waits between terminate and kill.
	GracePeriod time.Duration
}

func NewRegistry() *Registry {
	return &Registry{
		procs:       make(map[string][]*process),
		aborted:     make(map[string]bool),
		GracePeriod: 3 * time.Second,
	}
}

func (r *Registry) register(chatKey, label string, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[chatKey] = append(r.procs[chatKey], &process{
		chatKey: chatKey, label: label, cmd: cmd, registeredAt: time.Now(),
	})
}

func (r *Registry) unregister(chatKey string, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.procs[chatKey]
	for i, p := range list {
		if p.cmd == cmd {
			r.procs[chatKey] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// KillAll terminates every registered process for chatKey: sends
// terminate, waits GracePeriod, escalates to kill, reaps, and sets the
// per-chat aborted flag.
func (r *Registry) KillAll(chatKey string) {
	r.mu.Lock()
	list := append([]*process(nil), r.procs[chatKey]...)
	r.aborted[chatKey] = true
	r.mu.Unlock()

	for _, p := range list {
		killProcessTree(p.cmd, r.GracePeriod)
	}
}

// KillStale kills processes older than maxAge in wall-clock time,
// defending against host suspend/resume where monotonic timers stall.
func (r *Registry) KillStale(maxAge time.Duration) {
	now := time.Now()
	r.mu.Lock()
	var stale []*process
	for _, list := range r.procs {
		for _, p := range list {
			if now.Sub(p.registeredAt) > maxAge {
				stale = append(stale, p)
			}
		}
	}
	r.mu.Unlock()

	for _, p := range stale {
		killProcessTree(p.cmd, r.GracePeriod)
	}
}

// Aborted reports and does not clear the per-chat aborted flag.
func (r *Registry) Aborted(chatKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted[chatKey]
}

// ClearAborted clears the flag, called at the start of the next message.
func (r *Registry) ClearAborted(chatKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.aborted, chatKey)
}
