package session

import (
	"path/filepath"
	"testing"
	"time"
)

func TestAccumulateNeverRegressesCounters(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "sessions.json"))

	if err := m.Accumulate("chat-1", "claude", "sess-a", 0.10, 100); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}
	if err := m.Accumulate("chat-1", "claude", "", 0.05, 50); err != nil {
		t.Fatalf("Accumulate: %v", err)
	}

	bucket := m.Get("chat-1").Bucket("claude")
	if bucket.MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", bucket.MessageCount)
	}
	if bucket.SessionID != "sess-a" {
		t.Errorf("SessionID = %q, want sess-a (must survive an empty follow-up)", bucket.SessionID)
	}
	if bucket.Cost < 0.14 {
		t.Errorf("Cost = %v, want ~0.15", bucket.Cost)
	}
}

func TestProviderBucketsAreIsolated(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "sessions.json"))

	if err := m.Accumulate("chat-1", "claude", "sess-a", 1, 10); err != nil {
		t.Fatalf("Accumulate claude: %v", err)
	}
	if err := m.Accumulate("chat-1", "codex", "sess-b", 2, 20); err != nil {
		t.Fatalf("Accumulate codex: %v", err)
	}
	if err := m.SetActive("chat-1", "codex", "gpt-5"); err != nil {
		t.Fatalf("SetActive: %v", err)
	}

	env := m.Get("chat-1")
	if env.Bucket("claude").SessionID != "sess-a" {
		t.Error("switching active provider must not erase the other provider's bucket")
	}
	if env.Bucket("codex").SessionID != "sess-b" {
		t.Error("expected codex bucket to survive")
	}
}

func TestChatKeysListsEveryKnownChat(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "sessions.json"))
	_ = m.SetActive("chat-1", "claude", "")
	_ = m.SetActive("chat-2", "codex", "")

	keys := m.ChatKeys()
	if len(keys) != 2 {
		t.Fatalf("ChatKeys = %v, want 2 entries", keys)
	}
}

func TestIsFreshRespectsCooldown(t *testing.T) {
	now := time.Now()
	env := Envelope{LastActiveAt: now.Add(-30 * time.Second)}
	if !env.IsFresh(time.Minute, now) {
		t.Error("expected session within cooldown to be fresh")
	}
	if env.IsFresh(10*time.Second, now) {
		t.Error("expected session past cooldown to not be fresh")
	}
}
