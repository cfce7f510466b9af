package mcpsurface

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arcrelay/bridge/internal/cron"
	"github.com/arcrelay/bridge/internal/session"
	"github.com/arcrelay/bridge/internal/store"
)

func TestHandleSessionStatusRequiresChatID(t *testing.T) {
	sessions := session.NewManager(filepath.Join(t.TempDir(), "sessions.json"))
	cronStore := store.New(filepath.Join(t.TempDir(), "cron_jobs.json"), cron.Document{})
	s := New(sessions, cronStore)

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{}

	res, err := s.handleSessionStatus(context.Background(), req)
	if err != nil {
		t.Fatalf("handleSessionStatus: %v", err)
	}
	if !res.IsError {
		t.Error("expected an error result when chat_id is missing")
	}
}

func TestHandleSessionStatusReturnsEnvelope(t *testing.T) {
	sessions := session.NewManager(filepath.Join(t.TempDir(), "sessions.json"))
	_ = sessions.SetActive("chat-1", "claude", "sonnet")
	cronStore := store.New(filepath.Join(t.TempDir(), "cron_jobs.json"), cron.Document{})
	s := New(sessions, cronStore)

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"chat_id": "chat-1"}

	res, err := s.handleSessionStatus(context.Background(), req)
	if err != nil {
		t.Fatalf("handleSessionStatus: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}

	text := res.Content[0].(mcp.TextContent).Text
	var env session.Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if env.ActiveProvider != "claude" {
		t.Errorf("ActiveProvider = %q, want claude", env.ActiveProvider)
	}
}

func TestHandleCronStatusReturnsJobs(t *testing.T) {
	sessions := session.NewManager(filepath.Join(t.TempDir(), "sessions.json"))
	cronStore := store.New(filepath.Join(t.TempDir(), "cron_jobs.json"), cron.Document{
		Jobs: []cron.Job{{ID: "job-1", Title: "nightly build"}},
	})
	s := New(sessions, cronStore)

	res, err := s.handleCronStatus(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("handleCronStatus: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	text := res.Content[0].(mcp.TextContent).Text
	var jobs []cron.Job
	if err := json.Unmarshal([]byte(text), &jobs); err != nil {
		t.Fatalf("unmarshal jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Errorf("jobs = %+v, want one job with id job-1", jobs)
	}
}
