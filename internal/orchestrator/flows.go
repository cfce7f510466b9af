package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/arcrelay/bridge/internal/provider"
)

// normalFlow runs the ordinary message-handling path: resolve
// provider/model, build the request, execute, and persist the result.
func (o *Orchestrator) normalFlow(ctx context.Context, chatKey string, directive Directives, body string, sinks provider.Sinks) (Reply, error) {
	env := o.Sessions.Get(chatKey)

	// Step 1: resolve (provider, model): directive > per-chat override >
	// configured default, falling back via the equivalence map if the
	// resolved provider is unauthenticated.
	providerName := o.Config.DefaultProvider
	if env.ActiveProvider != "" {
		providerName = provider.Name(env.ActiveProvider)
	}
	model := o.Config.DefaultModel
	if env.ActiveModel != "" {
		model = env.ActiveModel
	}
	if directive.ModelOverride != "" {
		model = directive.ModelOverride
	}
	providerName = o.resolveAuthenticatedProvider(providerName)

	cli, ok := o.CLIs[providerName]
	if !ok {
		return Reply{}, fmt.Errorf("no CLI binding registered for provider %s", providerName)
	}

	// Step 2: resolve the session.
	if err := o.Sessions.SetActive(chatKey, string(providerName), model); err != nil {
		return Reply{}, err
	}
	bucket := env.Bucket(string(providerName))
	isNew := bucket.SessionID == ""

	system := ""
	// Step 3: on a new call, append the long-term memory file.
	if isNew {
		if data, err := os.ReadFile(o.Paths.MainMemoryFile); err == nil {
			system = string(data)
		}
	}
	// Step 4: hooks — append the memory-check reminder every Nth message.
	system = o.applyHooks(bucket.MessageCount, system)

	req := provider.Request{
		ChatKey:        chatKey,
		Prompt:         body,
		System:         system,
		ResumeID:       bucket.SessionID,
		Model:          model,
		PermissionMode: o.Config.DefaultPermissionMode,
		MaxTurns:       o.Config.DefaultMaxTurns,
		MaxBudget:      o.Config.DefaultMaxBudget,
		Timeout:        o.Config.DefaultTimeout,
		WorkDir:        o.Paths.WorkspaceDir,
	}

	o.Registry.ClearAborted(chatKey)
	resp, err := o.execute(ctx, cli, req, sinks)
	if err != nil {
		// Step 7: retry-on-resume-only. A call with a resume id that fails
		// is retried exactly once as a fresh session.
		if req.ResumeID != "" {
			if clearErr := o.Sessions.ClearBucket(chatKey, string(providerName)); clearErr != nil {
				return Reply{}, clearErr
			}
			req.ResumeID = ""
			resp, err = o.execute(ctx, cli, req, sinks)
		}
		if err != nil {
			o.Registry.KillAll(chatKey)
			_ = o.Sessions.ClearBucket(chatKey, string(providerName))
			return Reply{Text: "Session reset due to an error. Please send your message again."}, nil
		}
	}
	if resp.IsError && req.ResumeID != "" {
		if clearErr := o.Sessions.ClearBucket(chatKey, string(providerName)); clearErr != nil {
			return Reply{}, clearErr
		}
		req.ResumeID = ""
		resp, err = o.execute(ctx, cli, req, sinks)
		if err != nil || resp.IsError {
			o.Registry.KillAll(chatKey)
			_ = o.Sessions.ClearBucket(chatKey, string(providerName))
			return Reply{Text: "Session reset due to an error. Please send your message again."}, nil
		}
	}

	// Step 8: persist on success.
	if err := o.persistResult(chatKey, string(providerName), resp); err != nil {
		return Reply{}, err
	}

	text := resp.Text
	env = o.Sessions.Get(chatKey)
	b := env.Bucket(string(providerName))
	if env.Age(time.Now()) > o.Config.SessionAgeThreshold && b.MessageCount%10 == 0 {
		text += "\n\n(Consider /new to start a fresh session.)"
	}
	return Reply{Text: text}, nil
}

func (o *Orchestrator) execute(ctx context.Context, cli provider.CLI, req provider.Request, sinks provider.Sinks) (provider.Response, error) {
	if sinks.OnTextDelta != nil || sinks.OnToolUse != nil || sinks.OnSystemStatus != nil {
		return o.Runner.ExecuteStreaming(ctx, cli, req, sinks)
	}
	return o.Runner.Execute(ctx, cli, req)
}

// resolveAuthenticatedProvider falls back through the documented
// equivalence map when the requested provider is unauthenticated.
func (o *Orchestrator) resolveAuthenticatedProvider(requested provider.Name) provider.Name {
	if cli, ok := o.CLIs[requested]; ok && cli.AuthStatus() == provider.AuthAuthenticated {
		return requested
	}
	if fallback, ok := o.Config.Equivalence[requested]; ok {
		if cli, ok := o.CLIs[fallback]; ok && cli.AuthStatus() == provider.AuthAuthenticated {
			return fallback
		}
	}
	return requested
}

// applyHooks appends a one-paragraph "check your memory file" instruction
// every 6th outgoing message of the session; it is the only built-in hook.
func (o *Orchestrator) applyHooks(messageCount int, system string) string {
	every := o.Config.MemoryHookEvery
	if every <= 0 {
		every = 6
	}
	if messageCount > 0 && messageCount%every == 0 {
		reminder := "Before replying, check your long-term memory file for relevant prior context and update it if anything notable happened."
		if system == "" {
			return reminder
		}
		return system + "\n\n" + reminder
	}
	return system
}
