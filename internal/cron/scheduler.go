package cron

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/arcrelay/bridge/internal/corerr"
	"github.com/arcrelay/bridge/internal/provider"
	"github.com/arcrelay/bridge/internal/store"
)

// GlobalConfig carries the fallback values each job layers its own
// optional fields over.
type GlobalConfig struct {
	Timezone        string
	QuietHourStart  int
	QuietHourEnd    int
	Overrides       ExecOverrides
	CLITimeout      int
	WorkspaceRoot   string
	KnownModels     map[string]bool
}

// DependencyQueue is the shared map from key to a FIFO mutex, used by both
// cron fires and webhook task-mode dispatches that share a dependency key.
type DependencyQueue struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDependencyQueue() *DependencyQueue {
	return &DependencyQueue{locks: make(map[string]*sync.Mutex)}
}

func (d *DependencyQueue) lockFor(key string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.locks[key]
	if !ok {
		m = &sync.Mutex{}
		d.locks[key] = m
	}
	return m
}

// Acquire blocks until key's FIFO lock is free (or there is no key), and
// returns a release function. Go's sync.Mutex is itself FIFO-fair enough
// for this single-process, low-contention use.
func (d *DependencyQueue) Acquire(key string) func() {
	if key == "" {
		return func() {}
	}
	m := d.lockFor(key)
	m.Lock()
	return m.Unlock
}

// ResultCallback is invoked with (title, text, status) after each fire.
type ResultCallback func(title, text, status string)

// Scheduler drives cron entries, one timer per enabled job.
type Scheduler struct {
	Store      *store.Store[Document]
	Global     GlobalConfig
	DepQueue   *DependencyQueue
	CLIs       map[provider.Name]provider.CLI
	Runner     provider.Runner
	OnResult   ResultCallback

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

func NewScheduler(s *store.Store[Document], global GlobalConfig, dep *DependencyQueue, clis map[provider.Name]provider.CLI, runner provider.Runner) *Scheduler {
	return &Scheduler{Store: s, Global: global, DepQueue: dep, CLIs: clis, Runner: runner, timers: make(map[string]*time.Timer)}
}

// Start loads entries and schedules a single-shot timer per enabled entry.
func (s *Scheduler) Start() error {
	if err := s.Store.Load(); err != nil {
		return err
	}
	s.rescheduleAll()
	return nil
}

// Watch polls the store file's mtime and reschedules every enabled entry
// whenever an external edit changes it.
func (s *Scheduler) Watch(stop <-chan struct{}) {
	w := store.Watcher{Path: s.Store.Path, Interval: 5 * time.Second}
	w.Run(stop, func() {
		if err := s.Store.Load(); err == nil {
			s.rescheduleAll()
		}
	})
}

func (s *Scheduler) rescheduleAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[string]*time.Timer)

	s.Store.View(func(doc Document) {
		for _, job := range doc.Jobs {
			if !job.Enabled {
				continue
			}
			s.scheduleLocked(job)
		}
	})
}

func (s *Scheduler) scheduleLocked(job Job) {
	sched, err := robfigcron.ParseStandard(job.Schedule)
	if err != nil {
		return
	}
	loc := ResolveTimezone(job.Timezone, s.Global.Timezone)
	now := time.Now().In(loc)
	next := sched.Next(now)
	delay := next.Sub(time.Now())
	if delay < 0 {
		delay = 0
	}
	s.timers[job.ID] = time.AfterFunc(delay, func() { s.fire(job.ID) })
}

// Stop cancels all scheduled timers, for shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, t := range s.timers {
		t.Stop()
	}
}

func (s *Scheduler) fire(jobID string) {
	var job Job
	var found bool
	s.Store.View(func(doc Document) {
		for _, j := range doc.Jobs {
			if j.ID == jobID {
				job, found = j, true
				return
			}
		}
	})
	if !found || !job.Enabled {
		return
	}

	status := s.runOnce(job)

	_ = s.Store.Mutate(func(doc *Document) error {
		for i := range doc.Jobs {
			if doc.Jobs[i].ID == jobID {
				doc.Jobs[i].LastRunAt = time.Now()
				doc.Jobs[i].LastRunStatus = status
				job = doc.Jobs[i]
			}
		}
		return nil
	})

	// Schedule the next fire regardless of this occurrence's outcome.
	s.mu.Lock()
	if !s.stopped {
		s.scheduleLocked(job)
	}
	s.mu.Unlock()
}

// runOnce resolves execution config, runs the job's subprocess, and
// returns the recorded status.
func (s *Scheduler) runOnce(job Job) string {
	taskFolder := joinTaskFolder(s.Global.WorkspaceRoot, job.TaskFolder)
	if _, err := os.Stat(taskFolder); err != nil {
		s.report(job, "", StatusFolderMissing)
		return StatusFolderMissing
	}

	release := s.DepQueue.Acquire(job.DependencyKey)
	defer release()

	loc := ResolveTimezone(job.Timezone, s.Global.Timezone)
	hour := time.Now().In(loc).Hour()
	start, end := s.Global.QuietHourStart, s.Global.QuietHourEnd
	if job.QuietHourStart != nil && job.QuietHourEnd != nil {
		start, end = *job.QuietHourStart, *job.QuietHourEnd
	}
	if InQuietWindow(hour, start, end) {
		s.report(job, "", "quiet")
		return "quiet"
	}

	resolved := job.Overrides.Resolve(s.Global.Overrides)
	if resolved.Model != "" && s.Global.KnownModels != nil && !s.Global.KnownModels[resolved.Model] {
		resolved.Model = s.Global.Overrides.Model
	}
	providerName := provider.Name(resolved.Provider)
	if providerName == "" {
		providerName = provider.NameC
	}
	cli, ok := s.CLIs[providerName]
	if !ok {
		return statusCLINotFound(string(providerName))
	}

	instruction := fmt.Sprintf("%s\n\n(Refer to your task memory file at %s.)", job.Instruction, taskMemoryFile(taskFolder, job.TaskFolder))

	req := provider.Request{
		ChatKey:         "cron:" + job.ID,
		Prompt:          instruction,
		Model:           resolved.Model,
		ReasoningEffort: resolved.ReasoningEffort,
		ExtraArgs:       resolved.ExtraArgs,
		WorkDir:         taskFolder,
		Timeout:         s.Global.CLITimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.Global.CLITimeout)*time.Second+time.Minute)
	defer cancel()

	resp, err := s.Runner.Execute(ctx, cli, req)
	if err != nil {
		status := classifyExecError(err)
		s.report(job, "", status)
		return status
	}

	s.report(job, resp.Text, StatusSuccess)
	return StatusSuccess
}

func (s *Scheduler) report(job Job, text, status string) {
	if s.OnResult != nil {
		s.OnResult(job.Title, text, status)
	}
}

func joinTaskFolder(root, name string) string {
	if root == "" {
		return name
	}
	return filepath.Join(root, "cron_tasks", name)
}

func taskMemoryFile(taskFolder, name string) string {
	return filepath.Join(taskFolder, name+"_MEMORY.md")
}

// classifyExecError turns a provider.Execute error into a last_run_status
// code: a corerr "timeout" reports StatusTimeout, an abnormal subprocess
// exit reports exit_<code>, any other corerr reports its Message (such as
// the cli_not_found_<provider> form already produced upstream), and an
// error of any other type reports StatusTimeout.
func classifyExecError(err error) string {
	var cerr *corerr.Error
	if errors.As(err, &cerr) && cerr.Message == "timeout" {
		return StatusTimeout
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return statusExit(exitErr.ExitCode())
	}
	if cerr != nil {
		return cerr.Message
	}
	return StatusTimeout
}
