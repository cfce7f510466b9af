package provider

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// CodexCLI binds Provider O's command shape: JSON output
// flag, no-color flag, sandbox/permission flag, optional model/reasoning-
// effort configuration, optional extra args, then the prompt. Resume uses
// a distinct subcommand with the session id.
type CodexCLI struct {
	BinaryName string
	HomeDir    string // default from ARCRELAY_AGENT_O_HOME or ~/.codex
}

func NewCodexCLI(homeDir string) *CodexCLI {
	if homeDir == "" {
		home, _ := os.UserHomeDir()
		homeDir = filepath.Join(home, ".codex")
	}
	return &CodexCLI{BinaryName: "codex", HomeDir: homeDir}
}

func (c *CodexCLI) Name() Name { return NameO }
func (c *CodexCLI) Binary() string {
	if c.BinaryName != "" {
		return c.BinaryName
	}
	return "codex"
}

func (c *CodexCLI) UsesStdinPrompt() bool     { return runtime.GOOS == "windows" }
func (c *CodexCLI) ResumeViaSubcommand() bool { return true }

func (c *CodexCLI) BuildArgs(req Request, streaming bool) []string {
	var args []string
	if req.ResumeID != "" {
		args = append(args, "resume", req.ResumeID)
	} else {
		args = append(args, "exec")
	}
	args = append(args, "--json", "--no-color")
	if req.PermissionMode != "" {
		args = append(args, "--sandbox", req.PermissionMode)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.ReasoningEffort != "" {
		args = append(args, "--reasoning-effort", req.ReasoningEffort)
	}
	args = append(args, req.ExtraArgs...)
	if !c.UsesStdinPrompt() {
		args = append(args, req.Prompt)
	}
	return args
}

type codexResult struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	IsError   bool   `json:"is_error"`
	Text      string `json:"text"`
	Usage     struct {
		TotalTokens int64   `json:"total_tokens"`
		CostUSD     float64 `json:"cost_usd"`
	} `json:"usage"`
	// streaming-only fields
	Delta string `json:"delta"`
	Label string `json:"label"`
}

func (c *CodexCLI) ParseNonStreaming(data []byte) (Response, error) {
	var r codexResult
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, err
	}
	return Response{
		Text:      r.Text,
		SessionID: r.SessionID,
		Cost:      r.Usage.CostUSD,
		Tokens:    r.Usage.TotalTokens,
		IsError:   r.IsError,
	}, nil
}

func (c *CodexCLI) ParseLine(line []byte) (Event, bool) {
	var e codexResult
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, false
	}
	switch e.Type {
	case "result":
		res := Response{
			Text:      e.Text,
			SessionID: e.SessionID,
			Cost:      e.Usage.CostUSD,
			Tokens:    e.Usage.TotalTokens,
			IsError:   e.IsError,
		}
		return Event{Kind: EventResult, Result: &res}, true
	case "session_init":
		return Event{Kind: EventSystemInit, SessionID: e.SessionID}, true
	case "status":
		return Event{Kind: EventSystemStatus, StatusLabel: e.Label}, true
	case "token":
		if e.Delta != "" {
			return Event{Kind: EventTextDelta, TextDelta: e.Delta}, true
		}
	case "tool_call":
		return Event{Kind: EventToolUse, ToolLabel: e.Label}, true
	}
	return Event{}, false
}

func (c *CodexCLI) AuthStatus() AuthStatus {
	if c.HomeDir == "" {
		return AuthNotFound
	}
	if _, err := os.Stat(filepath.Join(c.HomeDir, "auth.json")); err == nil {
		return AuthAuthenticated
	}
	if _, err := os.Stat(c.HomeDir); err == nil {
		return AuthInstalled
	}
	return AuthNotFound
}
