// Package provider implements the CLI subprocess layer: spawning a
// provider binary with a composed command line, parsing its normalized
// stream events, capturing a final result, and process-tree termination.
// Grounded on 88lin-divinesense/ai/agent/cc_runner.go's
// spawn/stream-parse/result-handling shape, adapted to the two-provider
// (C/O) model and the normalized event set below.
package provider

import "context"

// Name identifies a configured provider.
type Name string

const (
	// NameC is "Provider C": permission-mode flag, model
	// flag, resume via session id or continuation flag, stream-json output.
	NameC Name = "claude"
	// NameO is "Provider O": JSON output flag, sandbox
	// flag, resume via a distinct subcommand.
	NameO Name = "codex"
)

// AuthStatus is the per-provider credentials-discovery result.
type AuthStatus string

const (
	AuthAuthenticated AuthStatus = "authenticated"
	AuthInstalled     AuthStatus = "installed"
	AuthNotFound      AuthStatus = "not-found"
)

// Request is the composed call into a provider, independent of its
// command-line shape.
type Request struct {
	ChatKey  string
	Prompt   string
	System   string // appended-system section
	ResumeID string // opaque resume id, empty for a fresh session

	Model           string
	ReasoningEffort string
	MaxTurns        int
	MaxBudget       float64
	PermissionMode  string
	ExtraArgs       []string

	WorkDir string
	Timeout int // seconds; 0 = provider default
}

// Response is the normalized result of a call contract.
type Response struct {
	Text           string
	SessionID      string
	Cost           float64
	Tokens         int64
	IsError        bool
	StreamFallback bool
}

// EventKind enumerates the normalized stream event types.
type EventKind string

const (
	EventTextDelta      EventKind = "text-delta"
	EventToolUse        EventKind = "tool-use"
	EventSystemInit     EventKind = "system-init"
	EventSystemStatus   EventKind = "system-status"
	EventCompactBoundary EventKind = "compact-boundary"
	EventResult         EventKind = "result"
)

// Event is one normalized stream event dispatched to callbacks during
// execute-streaming.
type Event struct {
	Kind EventKind

	TextDelta string // EventTextDelta
	ToolLabel string // EventToolUse

	SessionID string // EventSystemInit

	StatusLabel string // EventSystemStatus: thinking, compacting, …

	CompactTrigger   string // EventCompactBoundary
	CompactPreTokens int64

	Result *Response // EventResult
}

// Sinks groups the three streaming callbacks into pluggable sinks.
type Sinks struct {
	OnTextDelta    func(chunk string)
	OnToolUse      func(label string)
	OnSystemStatus func(label string)
}

func (s Sinks) dispatch(ev Event) {
	switch ev.Kind {
	case EventTextDelta:
		if s.OnTextDelta != nil {
			s.OnTextDelta(ev.TextDelta)
		}
	case EventToolUse:
		if s.OnToolUse != nil {
			s.OnToolUse(ev.ToolLabel)
		}
	case EventSystemStatus:
		if s.OnSystemStatus != nil {
			s.OnSystemStatus(ev.StatusLabel)
		}
	}
}

// CLI is the interface each provider binding implements: command
// composition plus parsing of its two output formats.
type CLI interface {
	Name() Name

	// BuildArgs composes the command-line arguments (excluding the binary
	// itself) for req. streaming selects the streaming/verbose flag set.
	BuildArgs(req Request, streaming bool) []string

	// Binary returns the executable name to look up on PATH.
	Binary() string

	// ParseNonStreaming parses a single JSON result object.
	ParseNonStreaming(data []byte) (Response, error)

	// ParseLine parses one NDJSON line of the streaming event protocol. ok
	// is false for lines that don't parse as a typed event (malformed
	// lines are skipped, non-fatal).
	ParseLine(line []byte) (Event, bool)

	// AuthStatus probes the well-known per-provider credentials location.
	AuthStatus() AuthStatus

	// UsesStdinPrompt reports whether the prompt must be passed via stdin
	// instead of argv, to avoid command-line mangling on hosts where that
	// is a concern.
	UsesStdinPrompt() bool

	// ResumeViaSubcommand reports whether resume uses a distinct
	// subcommand (Provider O) rather than a flag (Provider C).
	ResumeViaSubcommand() bool
}

// Runner executes requests against a CLI binding.
type Runner interface {
	Execute(ctx context.Context, cli CLI, req Request) (Response, error)
	ExecuteStreaming(ctx context.Context, cli CLI, req Request, sinks Sinks) (Response, error)
}
