package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/arcrelay/bridge/internal/corerr"
	"github.com/arcrelay/bridge/internal/cron"
	"github.com/arcrelay/bridge/internal/provider"
	"github.com/arcrelay/bridge/internal/store"
)

// placeholderPattern matches {{field}} template tokens used by wake-mode
// prompt templates.
var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Render implements the wake-mode template rendering: {{field}} ->
// payload[field]; missing fields render as {{?field}}.
func Render(template string, payload map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		field := placeholderPattern.FindStringSubmatch(token)[1]
		v, ok := payload[field]
		if !ok {
			return "{{?" + field + "}}"
		}
		return toText(v)
	})
}

func toText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

// untrustedBoundaryBegin/End wrap rendered wake-mode text in documented
// untrusted-payload boundary markers.
const (
	untrustedBoundaryBegin = "<<<UNTRUSTED_WEBHOOK_PAYLOAD>>>"
	untrustedBoundaryEnd   = "<<<END_UNTRUSTED_WEBHOOK_PAYLOAD>>>"
)

func wrapUntrusted(text string) string {
	return untrustedBoundaryBegin + "\n" + text + "\n" + untrustedBoundaryEnd
}

// WakeDeliverFunc is the injected "deliver as if user typed" hook: the
// webhook server never touches chat transport directly. It invokes this
// hook, which acquires the per-chat lock and calls the orchestrator.
type WakeDeliverFunc func(ctx context.Context, chatKey, text string) error

// RateLimiter is a per-source sliding-window limiter; one mutex guards the
// windows of every source.
type RateLimiter struct {
	mu          sync.Mutex
	windows     map[string][]time.Time
	PerMinute   int
}

func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{windows: make(map[string][]time.Time), PerMinute: perMinute}
}

func (rl *RateLimiter) Allow(source string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Minute)
	times := rl.windows[source]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= rl.PerMinute {
		rl.windows[source] = kept
		return false
	}
	rl.windows[source] = append(kept, now)
	return true
}

// Server implements the routes and validation chain.
type Server struct {
	Store         *store.Store[Document]
	RateLimiter   *RateLimiter
	GlobalToken   string
	Global        cron.GlobalConfig
	DepQueue      *cron.DependencyQueue
	CLIs          map[provider.Name]provider.CLI
	Runner        provider.Runner
	AllowedChats  []string
	Deliver       WakeDeliverFunc
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /hooks/{id}", s.handleHook)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleHook runs the strict validation chain: the first failure returns
// the listed status and no dispatch occurs.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	source := r.RemoteAddr

	// 1. Rate limit.
	if s.RateLimiter != nil && !s.RateLimiter.Allow(source) {
		w.WriteHeader(http.StatusTooManyRequests)
		return
	}
	// 2. Content type.
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		w.WriteHeader(http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	// 3. Body must parse as a JSON object.
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var hook Hook
	found := false
	s.Store.View(func(doc Document) {
		for _, h := range doc.Hooks {
			if h.ID == id {
				hook, found = h, true
				return
			}
		}
	})
	// 4. Hook exists.
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	// 5. Hook enabled.
	if !hook.Enabled {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	// 6. Per-hook auth.
	if !s.authenticate(r, body, hook) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	// 7. Enqueue async dispatch, respond immediately.
	go s.dispatch(hook, payload)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) authenticate(r *http.Request, body []byte, hook Hook) bool {
	switch hook.AuthMode {
	case AuthHMAC:
		return VerifyHMAC(r, body, hook.HMAC)
	default:
		return VerifyBearer(r, hook.Bearer.Token, s.GlobalToken)
	}
}

// dispatch implements wake vs. task mode.
func (s *Server) dispatch(hook Hook, payload map[string]any) {
	now := time.Now()
	status := StatusTriggered
	var lastErr string

	switch hook.Mode {
	case ModeWake:
		text := wrapUntrusted(Render(hook.Template, payload))
		for _, chatKey := range s.AllowedChats {
			if s.Deliver == nil {
				continue
			}
			if err := s.Deliver(context.Background(), chatKey, text); err != nil {
				lastErr = err.Error()
			}
		}
	case ModeTask:
		if err := s.runTask(hook, payload); err != nil {
			lastErr = err.Error()
			status = ""
		}
	}

	_ = s.Store.Mutate(func(doc *Document) error {
		for i := range doc.Hooks {
			if doc.Hooks[i].ID == hook.ID {
				doc.Hooks[i].TriggerCount++
				doc.Hooks[i].LastTriggeredAt = now.Format(time.RFC3339)
				doc.Hooks[i].LastError = lastErr
				_ = status
			}
		}
		return nil
	})
}

// StatusTriggered marks a successful trigger with no error: last-error is
// cleared on success.
const StatusTriggered = ""

// runTask honours per-hook quiet hours (fallback to global) and
// dependency key identically to cron, resolves execution config, renders
// hook.Template against the inbound payload for the prompt, and executes
// the same subprocess path as cron.
func (s *Server) runTask(hook Hook, payload map[string]any) error {
	release := s.DepQueue.Acquire(hook.DependencyKey)
	defer release()

	loc := cron.ResolveTimezone("", s.Global.Timezone)
	hour := time.Now().In(loc).Hour()
	start, end := s.Global.QuietHourStart, s.Global.QuietHourEnd
	if hook.QuietHourStart != nil && hook.QuietHourEnd != nil {
		start, end = *hook.QuietHourStart, *hook.QuietHourEnd
	}
	if cron.InQuietWindow(hour, start, end) {
		return corerr.New(corerr.KindWebhook, "webhook.runTask", "skipped: quiet hours")
	}

	resolved := hook.Overrides.Resolve(s.Global.Overrides)
	providerName := provider.Name(resolved.Provider)
	if providerName == "" {
		providerName = provider.NameC
	}
	cli, ok := s.CLIs[providerName]
	if !ok {
		return corerr.New(corerr.KindWebhook, "webhook.runTask", statusCLINotFoundMsg(string(providerName)))
	}

	prompt := hook.Description
	if hook.Template != "" {
		prompt = Render(hook.Template, payload)
	}
	req := provider.Request{
		ChatKey:         "webhook:" + hook.ID,
		Prompt:          prompt,
		Model:           resolved.Model,
		ReasoningEffort: resolved.ReasoningEffort,
		ExtraArgs:       resolved.ExtraArgs,
		WorkDir:         hook.TaskFolder,
		Timeout:         s.Global.CLITimeout,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.Global.CLITimeout)*time.Second+time.Minute)
	defer cancel()
	_, err := s.Runner.Execute(ctx, cli, req)
	return err
}

func statusCLINotFoundMsg(name string) string { return "cli_not_found_" + name }
