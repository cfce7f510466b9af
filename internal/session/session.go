// Package session implements the per-chat session store: provider-isolated
// state, freshness rules, and resume semantics, keeping each provider's
// bucket independent of the others.
package session

import (
	"time"

	"github.com/arcrelay/bridge/internal/store"
)

// Bucket is a provider-local record: opaque session id issued by that
// provider, message count, accumulated cost, accumulated token count.
type Bucket struct {
	SessionID    string  `json:"session_id,omitempty"`
	MessageCount int     `json:"message_count"`
	Cost         float64 `json:"cost"`
	Tokens       int64   `json:"tokens"`
}

// mergeMax folds other into b using per-metric max, so a merge never
// regresses a counter.
func (b *Bucket) mergeMax(other Bucket) {
	if other.SessionID != "" {
		b.SessionID = other.SessionID
	}
	if other.MessageCount > b.MessageCount {
		b.MessageCount = other.MessageCount
	}
	if other.Cost > b.Cost {
		b.Cost = other.Cost
	}
	if other.Tokens > b.Tokens {
		b.Tokens = other.Tokens
	}
}

// Envelope is the per-chat session record: at most one Bucket per provider.
type Envelope struct {
	ActiveProvider string            `json:"active_provider"`
	ActiveModel    string            `json:"active_model"`
	Buckets        map[string]Bucket `json:"buckets"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActiveAt   time.Time         `json:"last_active_at"`
}

func newEnvelope() Envelope {
	return Envelope{Buckets: make(map[string]Bucket), CreatedAt: time.Now()}
}

// Bucket returns a copy of the provider's bucket, or the zero value if
// absent; switching providers never erases other providers' records.
func (e Envelope) Bucket(provider string) Bucket {
	return e.Buckets[provider]
}

// Document is the top-level shape of sessions.json: chat id (stringified)
// to session envelope.
type Document struct {
	Sessions map[string]Envelope `json:"sessions"`
}

// Manager is the single-writer session store: only the orchestrator
// mutates it.
type Manager struct {
	s *store.Store[Document]
}

// NewManager opens (without yet loading) the session store at path.
func NewManager(path string) *Manager {
	return &Manager{s: store.New(path, Document{Sessions: make(map[string]Envelope)})}
}

// Load reads sessions.json if present.
func (m *Manager) Load() error { return m.s.Load() }

// Get returns a copy of the envelope for chatKey, creating it lazily in
// memory on first access without persisting the empty envelope yet.
func (m *Manager) Get(chatKey string) Envelope {
	var out Envelope
	m.s.View(func(doc Document) {
		if env, ok := doc.Sessions[chatKey]; ok {
			out = env
			return
		}
		out = newEnvelope()
	})
	return out
}

// SetActive sets the active provider/model for chatKey and persists.
func (m *Manager) SetActive(chatKey, provider, model string) error {
	return m.s.Mutate(func(doc *Document) error {
		env, ok := doc.Sessions[chatKey]
		if !ok {
			env = newEnvelope()
		}
		env.ActiveProvider = provider
		env.ActiveModel = model
		doc.Sessions[chatKey] = env
		return nil
	})
}

// PersistResult folds a completed call's outcome into the provider's
// bucket using per-metric max, updates last-active, and persists.
func (m *Manager) PersistResult(chatKey, provider string, result Bucket) error {
	return m.s.Mutate(func(doc *Document) error {
		env, ok := doc.Sessions[chatKey]
		if !ok {
			env = newEnvelope()
		}
		b := env.Buckets[provider]
		b.mergeMax(result)
		env.Buckets[provider] = b
		env.LastActiveAt = time.Now()
		doc.Sessions[chatKey] = env
		return nil
	})
}

// Accumulate increments message count by one and adds deltaCost/deltaTokens
// to the provider's running totals, updating the session id if the
// provider returned a new one. The result is
// folded via mergeMax so a persistence race can never regress a counter.
func (m *Manager) Accumulate(chatKey, provider, newSessionID string, deltaCost float64, deltaTokens int64) error {
	return m.s.Mutate(func(doc *Document) error {
		env, ok := doc.Sessions[chatKey]
		if !ok {
			env = newEnvelope()
		}
		b := env.Buckets[provider]
		next := Bucket{
			SessionID:    b.SessionID,
			MessageCount: b.MessageCount + 1,
			Cost:         b.Cost + deltaCost,
			Tokens:       b.Tokens + deltaTokens,
		}
		if newSessionID != "" {
			next.SessionID = newSessionID
		}
		b.mergeMax(next)
		env.Buckets[provider] = b
		env.LastActiveAt = time.Now()
		doc.Sessions[chatKey] = env
		return nil
	})
}

// ClearBucket clears a single provider's bucket for chatKey — used by an
// explicit new-session command or recovery after a failed resume.
func (m *Manager) ClearBucket(chatKey, provider string) error {
	return m.s.Mutate(func(doc *Document) error {
		env, ok := doc.Sessions[chatKey]
		if !ok {
			return nil
		}
		delete(env.Buckets, provider)
		doc.Sessions[chatKey] = env
		return nil
	})
}

// ChatKeys returns every chat id with a session envelope, for the
// heartbeat loop's per-chat sweep.
func (m *Manager) ChatKeys() []string {
	var keys []string
	m.s.View(func(doc Document) {
		keys = make([]string, 0, len(doc.Sessions))
		for k := range doc.Sessions {
			keys = append(keys, k)
		}
	})
	return keys
}

// IsFresh reports whether the chat's last activity is within cooldown of
// now, used by the heartbeat loop to skip chats that are still active.
func (e Envelope) IsFresh(cooldown time.Duration, now time.Time) bool {
	if e.LastActiveAt.IsZero() {
		return false
	}
	return now.Sub(e.LastActiveAt) < cooldown
}

// Age reports how long ago the session was created, for the
// consider-/new footer threshold.
func (e Envelope) Age(now time.Time) time.Duration {
	if e.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(e.CreatedAt)
}
