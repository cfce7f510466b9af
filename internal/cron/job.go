// Package cron implements the scheduler: timezone-aware single-shot
// rescheduling, quiet hours with wrap-around, and a shared dependency-key
// FIFO lock also used by webhook task-mode dispatch. Grounded on the
// robfig/cron/v3 schedule-parsing idioms confirmed by
// 88lin-divinesense/plugin/cron/cron_test.go, with the timezone/quiet-hour/
// dependency algorithm authored directly for this scheduler since no pack
// file implements it.
package cron

import (
	"strconv"
	"time"
)

// Job is one cron entry.
type Job struct {
	ID          string `json:"id"` // sanitized: lowercase, hyphens
	Title       string `json:"title"`
	Description string `json:"description"`
	Schedule    string `json:"schedule"` // 5-field standard
	TaskFolder  string `json:"task_folder"`
	Instruction string `json:"instruction"`
	Enabled     bool   `json:"enabled"`

	Timezone string `json:"timezone,omitempty"`

	QuietHourStart *int `json:"quiet_hour_start,omitempty"`
	QuietHourEnd   *int `json:"quiet_hour_end,omitempty"`

	DependencyKey string `json:"dependency_key,omitempty"`

	Overrides ExecOverrides `json:"overrides"`

	LastRunAt     time.Time `json:"last_run_at,omitempty"`
	LastRunStatus string    `json:"last_run_status,omitempty"`
}

// ExecOverrides layers execution config: entry > global, whole-field only,
// never merged or concatenated per-field.
type ExecOverrides struct {
	Provider        string   `json:"provider,omitempty"`
	Model           string   `json:"model,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
	ExtraArgs       []string `json:"extra_args,omitempty"`
}

// Resolve layers o over global, per field, whole-field override semantics.
func (o ExecOverrides) Resolve(global ExecOverrides) ExecOverrides {
	out := global
	if o.Provider != "" {
		out.Provider = o.Provider
	}
	if o.Model != "" {
		out.Model = o.Model
	}
	if o.ReasoningEffort != "" {
		out.ReasoningEffort = o.ReasoningEffort
	}
	if len(o.ExtraArgs) > 0 {
		out.ExtraArgs = o.ExtraArgs
	}
	return out
}

// Document is the shape of cron_jobs.json.
type Document struct {
	Jobs []Job `json:"jobs"`
}

// Status codes recorded on fire.
const (
	StatusSuccess      = "success"
	StatusFolderMissing = "folder_missing"
	StatusTimeout      = "timeout"
)

func statusCLINotFound(providerName string) string { return "cli_not_found_" + providerName }
func statusExit(code int) string                   { return "exit_" + strconv.Itoa(code) }
