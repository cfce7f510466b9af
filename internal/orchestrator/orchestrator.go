// Package orchestrator classifies incoming text (slash command, leading
// directive, or free text), drives the normal/heartbeat flows, and owns
// cross-cutting state such as the active model/provider and hooks. Grounded
// on core/internal/agent/controller.go's "resolve provider/model -> build
// request -> execute -> persist" shape.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/arcrelay/bridge/internal/corerr"
	"github.com/arcrelay/bridge/internal/provider"
	"github.com/arcrelay/bridge/internal/session"
	"github.com/arcrelay/bridge/internal/workspace"
)

// Config holds the cross-chat resolution rules shared by the message and
// heartbeat flows. Cron and webhook execution overrides resolve against
// cron.GlobalConfig instead.
type Config struct {
	DefaultProvider provider.Name
	DefaultModel    string
	KnownModels     map[string]bool // validates @name directives

	// Equivalence maps an unauthenticated provider to its documented
	// fallback.
	Equivalence map[provider.Name]provider.Name

	HeartbeatPrompt string
	HeartbeatAckToken string
	HeartbeatCooldown time.Duration

	SessionAgeThreshold time.Duration
	MemoryHookEvery     int // every Nth message appends the memory reminder

	DefaultPermissionMode string
	DefaultMaxTurns       int
	DefaultMaxBudget      float64
	DefaultTimeout        int
}

// Orchestrator ties together sessions, providers, and the workspace paths.
type Orchestrator struct {
	Config  Config
	Paths   workspace.Paths
	CLIs    map[provider.Name]provider.CLI
	Runner  provider.Runner
	Sessions *session.Manager
	Registry *provider.Registry
}

// New builds an Orchestrator.
func New(cfg Config, paths workspace.Paths, runner provider.Runner, registry *provider.Registry, sessions *session.Manager, clis map[provider.Name]provider.CLI) *Orchestrator {
	return &Orchestrator{Config: cfg, Paths: paths, CLIs: clis, Runner: runner, Sessions: sessions, Registry: registry}
}

// Reply is the result of handling one message: text plus optional inline
// controls and file references.
type Reply struct {
	Text        string
	Buttons     []Button
	FileRefs    []string
}

// Button is one inline control bound to a callback-data payload.
type Button struct {
	Text string
	Data string
}

// HandleMessage implements the non-streaming `handle-message` operation.
func (o *Orchestrator) HandleMessage(ctx context.Context, chatKey, text string) (Reply, error) {
	return o.route(ctx, chatKey, text, provider.Sinks{})
}

// HandleMessageStreaming implements the streaming variant taking three
// callbacks (text-delta, tool-indicator, system-status).
func (o *Orchestrator) HandleMessageStreaming(ctx context.Context, chatKey, text string, sinks provider.Sinks) (Reply, error) {
	return o.route(ctx, chatKey, text, sinks)
}

func (o *Orchestrator) route(ctx context.Context, chatKey, text string, sinks provider.Sinks) (Reply, error) {
	directive, body := ParseDirectives(text)
	if directive.ModelOverride != "" && !o.Config.KnownModels[directive.ModelOverride] {
		directive.ModelOverride = "" // not a known model id: not a directive
	}

	if reply, handled, err := o.dispatchCommand(ctx, chatKey, body); handled {
		return reply, err
	}

	if directive.ModelOverride != "" && body == "" {
		return Reply{Text: fmt.Sprintf("Model directive @%s noted; send a message body to use it.", directive.ModelOverride)}, nil
	}

	reply, err := o.normalFlow(ctx, chatKey, directive, body, sinks)
	if err != nil {
		if k, ok := corerr.KindOf(err); ok {
			logCoreError(chatKey, k, err)
			return Reply{Text: "An internal error occurred. Please try again."}, nil
		}
		return Reply{}, err
	}
	return reply, nil
}

func logCoreError(chatKey string, kind corerr.Kind, err error) {
	fmt.Fprintf(os.Stderr, "orchestrator: chat=%s kind=%s err=%v\n", chatKey, kind, err)
}

// HandleHeartbeat implements the periodic per-chat heartbeat flow.
func (o *Orchestrator) HandleHeartbeat(ctx context.Context, chatKey string) (text string, deliver bool, err error) {
	env := o.Sessions.Get(chatKey)
	if env.ActiveProvider == "" {
		return "", false, nil
	}
	bucket := env.Bucket(env.ActiveProvider)
	if bucket.SessionID == "" {
		return "", false, nil
	}
	if env.ActiveProvider != string(o.Config.DefaultProvider) {
		// stored provider no longer matches the currently configured
		// default: skip rather than ping a provider nobody configured.
		return "", false, nil
	}
	if env.IsFresh(o.Config.HeartbeatCooldown, time.Now()) {
		return "", false, nil
	}

	cli, ok := o.CLIs[provider.Name(env.ActiveProvider)]
	if !ok {
		return "", false, nil
	}

	req := provider.Request{
		ChatKey:  chatKey,
		Prompt:   o.Config.HeartbeatPrompt,
		ResumeID: bucket.SessionID,
		Model:    env.ActiveModel,
		Timeout:  o.Config.DefaultTimeout,
	}
	resp, err := o.Runner.Execute(ctx, cli, req)
	if err != nil {
		return "", false, err
	}
	if resp.Text == o.Config.HeartbeatAckToken || startsWith(resp.Text, o.Config.HeartbeatAckToken) {
		return "", false, nil // suppressed; metrics not updated
	}

	if err := o.persistResult(chatKey, env.ActiveProvider, resp); err != nil {
		return "", false, err
	}
	return resp.Text, true, nil
}

func startsWith(s, prefix string) bool {
	return prefix != "" && len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func (o *Orchestrator) persistResult(chatKey, providerName string, resp provider.Response) error {
	return o.Sessions.Accumulate(chatKey, providerName, resp.SessionID, resp.Cost, resp.Tokens)
}
