package provider

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// ClaudeCLI binds Provider C's command shape: permission
// mode flag, model flag, optional system-prompt flags, optional
// max-turns/max-budget, resume flag with session id or continuation flag,
// extra args, a "--" separator, then the prompt.
type ClaudeCLI struct {
	BinaryName string // default "claude"
	HomeDir    string // credentials-discovery home, default ~/.claude
}

func NewClaudeCLI() *ClaudeCLI {
	home, _ := os.UserHomeDir()
	return &ClaudeCLI{BinaryName: "claude", HomeDir: filepath.Join(home, ".claude")}
}

func (c *ClaudeCLI) Name() Name    { return NameC }
func (c *ClaudeCLI) Binary() string {
	if c.BinaryName != "" {
		return c.BinaryName
	}
	return "claude"
}

func (c *ClaudeCLI) UsesStdinPrompt() bool      { return runtime.GOOS == "windows" }
func (c *ClaudeCLI) ResumeViaSubcommand() bool  { return false }

func (c *ClaudeCLI) BuildArgs(req Request, streaming bool) []string {
	args := []string{"--print"}
	if streaming {
		args = append(args, "--verbose", "--output-format", "stream-json")
	} else {
		args = append(args, "--output-format", "json")
	}
	if req.PermissionMode != "" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}
	if req.Model != "" {
		args = append(args, "--model", req.Model)
	}
	if req.System != "" {
		args = append(args, "--append-system-prompt", req.System)
	}
	if req.MaxTurns > 0 {
		args = append(args, "--max-turns", itoa(req.MaxTurns))
	}
	if req.MaxBudget > 0 {
		args = append(args, "--max-budget", ftoa(req.MaxBudget))
	}
	if req.ResumeID != "" {
		args = append(args, "--resume", req.ResumeID)
	} else {
		args = append(args, "--session-id", newSessionID())
	}
	args = append(args, req.ExtraArgs...)
	args = append(args, "--")
	if !c.UsesStdinPrompt() {
		args = append(args, req.Prompt)
	}
	return args
}

// claudeResult mirrors the single-JSON-object non-streaming output, and is
// also the shape of the terminal "result" stream event.
type claudeResult struct {
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	IsError   bool    `json:"is_error"`
	Result    string  `json:"result"`
	CostUSD   float64 `json:"total_cost_usd"`
	Usage     struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (c *ClaudeCLI) ParseNonStreaming(data []byte) (Response, error) {
	var r claudeResult
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, err
	}
	return Response{
		Text:      r.Result,
		SessionID: r.SessionID,
		Cost:      r.CostUSD,
		Tokens:    r.Usage.InputTokens + r.Usage.OutputTokens,
		IsError:   r.IsError,
	}, nil
}

// claudeStreamEvent is one line of the newline-delimited stream-json
// protocol. The set of fields populated depends on Type.
type claudeStreamEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`

	// assistant/content deltas
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
			Name string `json:"name"` // tool name for tool_use blocks
		} `json:"content"`
	} `json:"message"`

	// system
	SessionID string `json:"session_id"`

	// status labels: thinking, compacting, …
	Status string `json:"status"`

	// compact_boundary
	Trigger   string `json:"trigger"`
	PreTokens int64  `json:"pre_tokens"`

	claudeResult
}

func (c *ClaudeCLI) ParseLine(line []byte) (Event, bool) {
	var e claudeStreamEvent
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, false
	}
	switch e.Type {
	case "result":
		res := Response{
			Text:      e.claudeResult.Result,
			SessionID: e.claudeResult.SessionID,
			Cost:      e.claudeResult.CostUSD,
			Tokens:    e.claudeResult.Usage.InputTokens + e.claudeResult.Usage.OutputTokens,
			IsError:   e.claudeResult.IsError,
		}
		return Event{Kind: EventResult, Result: &res}, true
	case "system":
		if e.Subtype == "init" {
			return Event{Kind: EventSystemInit, SessionID: e.SessionID}, true
		}
		if e.Status != "" {
			return Event{Kind: EventSystemStatus, StatusLabel: e.Status}, true
		}
	case "compact_boundary":
		return Event{Kind: EventCompactBoundary, CompactTrigger: e.Trigger, CompactPreTokens: e.PreTokens}, true
	case "assistant":
		for _, block := range e.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					return Event{Kind: EventTextDelta, TextDelta: block.Text}, true
				}
			case "tool_use":
				return Event{Kind: EventToolUse, ToolLabel: block.Name}, true
			}
		}
	case "content_block_delta":
		if e.Delta.Text != "" {
			return Event{Kind: EventTextDelta, TextDelta: e.Delta.Text}, true
		}
	}
	return Event{}, false
}

func (c *ClaudeCLI) AuthStatus() AuthStatus {
	if c.HomeDir == "" {
		return AuthNotFound
	}
	if _, err := os.Stat(filepath.Join(c.HomeDir, ".credentials.json")); err == nil {
		return AuthAuthenticated
	}
	if _, err := os.Stat(c.HomeDir); err == nil {
		return AuthInstalled
	}
	return AuthNotFound
}
