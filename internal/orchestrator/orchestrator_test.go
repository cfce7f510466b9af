package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/arcrelay/bridge/internal/provider"
	"github.com/arcrelay/bridge/internal/session"
	"github.com/arcrelay/bridge/internal/workspace"
)

// fakeCLI is a minimal provider.CLI double; only AuthStatus and Name are
// exercised by the orchestrator tests below.
type fakeCLI struct {
	name provider.Name
	auth provider.AuthStatus
}

func (f fakeCLI) Name() provider.Name                                        { return f.name }
func (f fakeCLI) BuildArgs(req provider.Request, streaming bool) []string    { return nil }
func (f fakeCLI) Binary() string                                            { return string(f.name) }
func (f fakeCLI) ParseNonStreaming(data []byte) (provider.Response, error)   { return provider.Response{}, nil }
func (f fakeCLI) ParseLine(line []byte) (provider.Event, bool)               { return provider.Event{}, false }
func (f fakeCLI) AuthStatus() provider.AuthStatus                           { return f.auth }
func (f fakeCLI) UsesStdinPrompt() bool                                     { return false }
func (f fakeCLI) ResumeViaSubcommand() bool                                 { return false }

// fakeRunner lets each test script fixed responses/errors per call, to
// exercise the resume-retry-exactly-once path deterministically.
type fakeRunner struct {
	calls     []provider.Request
	responses []provider.Response
	errs      []error
}

func (r *fakeRunner) Execute(ctx context.Context, cli provider.CLI, req provider.Request) (provider.Response, error) {
	i := len(r.calls)
	r.calls = append(r.calls, req)
	var resp provider.Response
	var err error
	if i < len(r.responses) {
		resp = r.responses[i]
	}
	if i < len(r.errs) {
		err = r.errs[i]
	}
	return resp, err
}

func (r *fakeRunner) ExecuteStreaming(ctx context.Context, cli provider.CLI, req provider.Request, sinks provider.Sinks) (provider.Response, error) {
	return r.Execute(ctx, cli, req)
}

func newTestOrchestrator(t *testing.T, runner *fakeRunner, clis map[provider.Name]provider.CLI) *Orchestrator {
	t.Helper()
	paths, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	sessions := session.NewManager(filepath.Join(t.TempDir(), "sessions.json"))
	cfg := Config{
		DefaultProvider:     provider.NameC,
		DefaultModel:        "default-model",
		KnownModels:         map[string]bool{"default-model": true, "other-model": true},
		HeartbeatCooldown:   time.Hour,
		SessionAgeThreshold: time.Hour,
		MemoryHookEvery:     6,
	}
	return New(cfg, paths, runner, provider.NewRegistry(), sessions, clis)
}

func TestHandleMessageNormalFlowPersistsSessionID(t *testing.T) {
	runner := &fakeRunner{responses: []provider.Response{{Text: "hi", SessionID: "sess-1"}}}
	clis := map[provider.Name]provider.CLI{provider.NameC: fakeCLI{name: provider.NameC, auth: provider.AuthAuthenticated}}
	o := newTestOrchestrator(t, runner, clis)

	reply, err := o.HandleMessage(context.Background(), "chat1", "hello")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if reply.Text != "hi" {
		t.Errorf("reply.Text = %q, want hi", reply.Text)
	}
	env := o.Sessions.Get("chat1")
	if env.Bucket(string(provider.NameC)).SessionID != "sess-1" {
		t.Errorf("session id not persisted: %+v", env)
	}
}

func TestNormalFlowRetriesExactlyOnceOnResumeFailure(t *testing.T) {
	runner := &fakeRunner{
		responses: []provider.Response{{}, {Text: "fresh reply", SessionID: "sess-2"}},
		errs:      []error{errors.New("resume failed"), nil},
	}
	clis := map[provider.Name]provider.CLI{provider.NameC: fakeCLI{name: provider.NameC, auth: provider.AuthAuthenticated}}
	o := newTestOrchestrator(t, runner, clis)

	// Seed an existing resumable bucket so the first call carries a
	// ResumeID and the retry path engages.
	if err := o.Sessions.SetActive("chat1", string(provider.NameC), "default-model"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if err := o.Sessions.Accumulate("chat1", string(provider.NameC), "sess-0", 0, 0); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}

	reply, err := o.HandleMessage(context.Background(), "chat1", "hello")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("Execute called %d times, want exactly 2 (initial + one retry)", len(runner.calls))
	}
	if runner.calls[0].ResumeID != "sess-0" {
		t.Errorf("first call ResumeID = %q, want sess-0", runner.calls[0].ResumeID)
	}
	if runner.calls[1].ResumeID != "" {
		t.Errorf("retry call ResumeID = %q, want empty (fresh session)", runner.calls[1].ResumeID)
	}
	if reply.Text != "fresh reply" {
		t.Errorf("reply.Text = %q, want fresh reply", reply.Text)
	}
}

func TestNormalFlowGivesUpAfterRetryAlsoFails(t *testing.T) {
	runner := &fakeRunner{
		errs: []error{errors.New("first failure"), errors.New("retry also failed")},
	}
	clis := map[provider.Name]provider.CLI{provider.NameC: fakeCLI{name: provider.NameC, auth: provider.AuthAuthenticated}}
	o := newTestOrchestrator(t, runner, clis)

	if err := o.Sessions.SetActive("chat1", string(provider.NameC), "default-model"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if err := o.Sessions.Accumulate("chat1", string(provider.NameC), "sess-0", 0, 0); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}

	reply, err := o.HandleMessage(context.Background(), "chat1", "hello")
	if err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("Execute called %d times, want exactly 2 (no further retries)", len(runner.calls))
	}
	if reply.Text == "" {
		t.Error("expected a user-facing reset message")
	}
	env := o.Sessions.Get("chat1")
	if env.Bucket(string(provider.NameC)).SessionID != "" {
		t.Errorf("session id should be cleared after a failed retry, got %+v", env)
	}
}

func TestHandleCallbackRoutesThroughNormalFlow(t *testing.T) {
	runner := &fakeRunner{responses: []provider.Response{{Text: "callback reply"}}}
	clis := map[provider.Name]provider.CLI{provider.NameC: fakeCLI{name: provider.NameC, auth: provider.AuthAuthenticated}}
	o := newTestOrchestrator(t, runner, clis)

	reply, err := o.HandleCallback(context.Background(), "chat1", "some-callback-data")
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if reply.Text != "callback reply" {
		t.Errorf("reply.Text = %q, want callback reply", reply.Text)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("Execute called %d times, want 1", len(runner.calls))
	}
}

func TestHandleHeartbeatSkipsWhenNoActiveProvider(t *testing.T) {
	runner := &fakeRunner{}
	clis := map[provider.Name]provider.CLI{provider.NameC: fakeCLI{name: provider.NameC, auth: provider.AuthAuthenticated}}
	o := newTestOrchestrator(t, runner, clis)

	_, deliver, err := o.HandleHeartbeat(context.Background(), "chat1")
	if err != nil {
		t.Fatalf("HandleHeartbeat: %v", err)
	}
	if deliver {
		t.Error("deliver = true, want false for a chat with no active provider")
	}
	if len(runner.calls) != 0 {
		t.Errorf("Execute called %d times, want 0", len(runner.calls))
	}
}

func TestHandleHeartbeatSkipsWhenStoredProviderDiffersFromConfiguredDefault(t *testing.T) {
	runner := &fakeRunner{responses: []provider.Response{{Text: "heartbeat reply"}}}
	clis := map[provider.Name]provider.CLI{
		provider.NameC: fakeCLI{name: provider.NameC, auth: provider.AuthAuthenticated},
		provider.NameO: fakeCLI{name: provider.NameO, auth: provider.AuthAuthenticated},
	}
	o := newTestOrchestrator(t, runner, clis)
	// DefaultProvider is NameC; the chat's stored active provider is the
	// other known, registered provider.
	if err := o.Sessions.SetActive("chat1", string(provider.NameO), "default-model"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if err := o.Sessions.Accumulate("chat1", string(provider.NameO), "sess-1", 0, 0); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}

	_, deliver, err := o.HandleHeartbeat(context.Background(), "chat1")
	if err != nil {
		t.Fatalf("HandleHeartbeat: %v", err)
	}
	if deliver {
		t.Error("deliver = true, want false: stored provider no longer matches the configured default")
	}
	if len(runner.calls) != 0 {
		t.Errorf("Execute called %d times, want 0 — heartbeat must not ping a provider nobody configured", len(runner.calls))
	}
}

func TestHandleHeartbeatFiresWhenProviderMatchesAndStale(t *testing.T) {
	runner := &fakeRunner{responses: []provider.Response{{Text: "heartbeat reply"}}}
	clis := map[provider.Name]provider.CLI{provider.NameC: fakeCLI{name: provider.NameC, auth: provider.AuthAuthenticated}}
	o := newTestOrchestrator(t, runner, clis)
	o.Config.HeartbeatCooldown = 0 // never "fresh"

	if err := o.Sessions.SetActive("chat1", string(provider.NameC), "default-model"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if err := o.Sessions.Accumulate("chat1", string(provider.NameC), "sess-1", 0, 0); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}

	text, deliver, err := o.HandleHeartbeat(context.Background(), "chat1")
	if err != nil {
		t.Fatalf("HandleHeartbeat: %v", err)
	}
	if !deliver || text != "heartbeat reply" {
		t.Errorf("deliver=%v text=%q, want deliver=true text=heartbeat reply", deliver, text)
	}
}
