package orchestrator

import (
	"context"
	"strconv"
	"strings"
)

// Command is one entry of the static dispatch table: a name, whether it
// accepts a trailing argument, whether it bypasses the per-chat lock, and
// its handler.
type Command struct {
	Name       string
	AllowsArg  bool // supports "/model <name>" prefix-with-trailing-space form
	QuickBypass bool // bypasses the per-chat lock
	Handler    func(ctx context.Context, o *Orchestrator, chatKey, arg string) (Reply, error)
}

// commandTable is populated by RegisterCommand; dispatch is a linear scan
// with exact-then-prefix priority.
var commandTable []Command

// RegisterCommand adds a command to the static dispatch table.
func RegisterCommand(c Command) { commandTable = append(commandTable, c) }

func init() {
	RegisterCommand(Command{Name: "/status", QuickBypass: true, Handler: statusCommand})
	RegisterCommand(Command{Name: "/memory", QuickBypass: true, Handler: memoryCommand})
	RegisterCommand(Command{Name: "/cron", QuickBypass: true, Handler: cronListCommand})
	RegisterCommand(Command{Name: "/diagnose", QuickBypass: true, Handler: diagnoseCommand})
	RegisterCommand(Command{Name: "/files", QuickBypass: true, Handler: filesCommand})
	RegisterCommand(Command{Name: "/model", QuickBypass: true, AllowsArg: true, Handler: modelWizardCommand})
	RegisterCommand(Command{Name: "/new", Handler: newSessionCommand})
}

// QuickCommandNames returns the fixed set of read-only commands that
// bypass the per-chat lock, for the ingress pipeline's bypass check.
func QuickCommandNames() map[string]bool {
	m := make(map[string]bool)
	for _, c := range commandTable {
		if c.QuickBypass {
			m[c.Name] = true
		}
	}
	return m
}

// dispatchCommand performs exact and prefix-with-trailing-space matching
// against the command registry.
// Unknown commands fall through to free-text routing (handled=false).
func (o *Orchestrator) dispatchCommand(ctx context.Context, chatKey, text string) (Reply, bool, error) {
	if !strings.HasPrefix(text, "/") {
		return Reply{}, false, nil
	}
	for _, c := range commandTable {
		if text == c.Name {
			reply, err := c.Handler(ctx, o, chatKey, "")
			return reply, true, err
		}
		if c.AllowsArg && strings.HasPrefix(text, c.Name+" ") {
			arg := strings.TrimSpace(strings.TrimPrefix(text, c.Name+" "))
			reply, err := c.Handler(ctx, o, chatKey, arg)
			return reply, true, err
		}
	}
	return Reply{}, false, nil
}

func statusCommand(ctx context.Context, o *Orchestrator, chatKey, arg string) (Reply, error) {
	env := o.Sessions.Get(chatKey)
	b := env.Bucket(env.ActiveProvider)
	return Reply{Text: commandLayout("Status",
		"provider="+env.ActiveProvider+" model="+env.ActiveModel+
			" messages="+strconv.Itoa(b.MessageCount))}, nil
}

func memoryCommand(ctx context.Context, o *Orchestrator, chatKey, arg string) (Reply, error) {
	return Reply{Text: commandLayout("Memory", "Long-term memory file: "+o.Paths.MainMemoryFile)}, nil
}

func cronListCommand(ctx context.Context, o *Orchestrator, chatKey, arg string) (Reply, error) {
	return Reply{Text: commandLayout("Cron", "Use the cron tooling to inspect scheduled jobs.")}, nil
}

func diagnoseCommand(ctx context.Context, o *Orchestrator, chatKey, arg string) (Reply, error) {
	var lines []string
	for name, cli := range o.CLIs {
		lines = append(lines, string(name)+": "+string(cli.AuthStatus()))
	}
	return Reply{Text: commandLayout("Diagnose", strings.Join(lines, "\n"))}, nil
}

func filesCommand(ctx context.Context, o *Orchestrator, chatKey, arg string) (Reply, error) {
	return Reply{Text: commandLayout("Files", o.Paths.OutputToUserDir)}, nil
}

// modelWizardCommand checks whether the chat's queue is busy before acting:
// if the lock is held or the queue is non-empty, respond with a busy hint
// instead of switching models. The busy check itself is delegated to
// the ingress pipeline's queue.Manager via IsBusy, injected at wiring time.
var modelWizardBusyCheck func(chatKey string) bool

func modelWizardCommand(ctx context.Context, o *Orchestrator, chatKey, arg string) (Reply, error) {
	if modelWizardBusyCheck != nil && modelWizardBusyCheck(chatKey) {
		return Reply{Text: "Agent is busy; try again once the current message finishes."}, nil
	}
	if arg == "" {
		return Reply{Text: commandLayout("Model", "Usage: /model <name>")}, nil
	}
	if !o.Config.KnownModels[arg] {
		return Reply{Text: commandLayout("Model", "Unknown model: "+arg)}, nil
	}
	env := o.Sessions.Get(chatKey)
	if err := o.Sessions.SetActive(chatKey, env.ActiveProvider, arg); err != nil {
		return Reply{}, err
	}
	return Reply{Text: commandLayout("Model", "Switched to "+arg)}, nil
}

func newSessionCommand(ctx context.Context, o *Orchestrator, chatKey, arg string) (Reply, error) {
	env := o.Sessions.Get(chatKey)
	o.Registry.KillAll(chatKey)
	if env.ActiveProvider != "" {
		if err := o.Sessions.ClearBucket(chatKey, env.ActiveProvider); err != nil {
			return Reply{}, err
		}
	}
	return Reply{Text: "Session reset. Starting fresh on your next message."}, nil
}

// SetModelWizardBusyCheck wires the ingress pipeline's busy check into
// the /model command.
func SetModelWizardBusyCheck(fn func(chatKey string) bool) { modelWizardBusyCheck = fn }

func commandLayout(title, body string) string {
	return title + "\n" + strings.Repeat("-", len(title)) + "\n" + body
}
