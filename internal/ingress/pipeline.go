// Package ingress implements the per-chat message pipeline: authentication,
// abort detection, quick-command bypass, deduplication, and lock
// acquisition with a visible queue — independent of which chat transport
// delivered the update (internal/telegram and internal/discordchat both
// implement Transport).
package ingress

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arcrelay/bridge/internal/orchestrator"
	"github.com/arcrelay/bridge/internal/queue"
)

// Update is one inbound chat message, transport-agnostic.
type Update struct {
	ChatKey         string
	UserID          string
	OriginMessageID string
	Text            string
	ForumTopicID    string // propagated to replies when the transport uses forum topics
}

// Transport is the minimal surface the pipeline needs from a chat binding:
// posting/editing/deleting the visible queue indicator and delivering the
// final reply.
type Transport interface {
	PostIndicator(ctx context.Context, u Update, cancelData string) (messageID string, err error)
	EditMessage(ctx context.Context, messageID, text string) error
	DeleteMessage(ctx context.Context, messageID string) error
	DeliverReply(ctx context.Context, u Update, reply orchestrator.Reply) error
}

// Config holds the allowlist and abort-keyword configuration.
type Config struct {
	Allowlist     map[string]bool
	StopCommand   string   // exact match, e.g. "/stop"
	AbortKeywords []string // single-word exact matches only
	DedupeTTL     time.Duration
}

// Pipeline ties the queue manager, orchestrator, and a transport together.
type Pipeline struct {
	Config       Config
	Queue        *queue.Manager
	Orchestrator *orchestrator.Orchestrator
	Transport    Transport

	dedupeMu sync.Mutex
	dedupe   map[string]time.Time
}

func New(cfg Config, q *queue.Manager, orch *orchestrator.Orchestrator, transport Transport) *Pipeline {
	q.EditIndicator = func(messageID, text string) error {
		return transport.EditMessage(context.Background(), messageID, text)
	}
	q.DeleteIndicator = func(messageID string) error {
		return transport.DeleteMessage(context.Background(), messageID)
	}
	orchestrator.SetModelWizardBusyCheck(q.IsBusy)
	return &Pipeline{Config: cfg, Queue: q, Orchestrator: orch, Transport: transport, dedupe: make(map[string]time.Time)}
}

// Handle runs one inbound message through the full pipeline: allowlist
// check, abort/dedupe detection, command dispatch, and queueing.
func (p *Pipeline) Handle(ctx context.Context, u Update) error {
	// 1. Authentication filter.
	if !p.Config.Allowlist[u.UserID] {
		return nil
	}

	// 2. Abort detection. Killing the subprocess does not make the
	// in-flight call's own Execute return immediately (it can take up to
	// GracePeriod to actually exit), so the lock stays held and must be
	// freed only by that call's own deferred Release — releasing it here
	// too would let a subsequent message run concurrently with the one
	// still being killed.
	if p.isAbort(u.Text) {
		p.Orchestrator.Registry.KillAll(u.ChatKey)
		p.Queue.Drain(u.ChatKey)
		return nil
	}

	// 3. Quick-command bypass.
	if orchestrator.QuickCommandNames()[firstToken(u.Text)] {
		reply, err := p.Orchestrator.HandleMessage(ctx, u.ChatKey, u.Text)
		if err != nil {
			return err
		}
		return p.Transport.DeliverReply(ctx, u, reply)
	}

	// 4. Deduplication.
	if p.isDuplicate(u.ChatKey, u.OriginMessageID) {
		return nil
	}

	// 5. Lock acquisition with queue.
	entryID := uuid.NewString()
	acquired, entry := p.Queue.Acquire(u.ChatKey, u.OriginMessageID, entryID)
	if !acquired {
		msgID, err := p.Transport.PostIndicator(ctx, u, entryID)
		if err == nil {
			p.Queue.SetIndicator(u.ChatKey, entryID, msgID)
		}
		<-entry.Done()
		if entry.Cancelled {
			return nil
		}
	}
	defer p.Queue.Release(u.ChatKey)

	reply, err := p.Orchestrator.HandleMessage(ctx, u.ChatKey, u.Text)
	if err != nil {
		return err
	}
	return p.Transport.DeliverReply(ctx, u, reply)
}

// Cancel routes an inline "cancel this message" button press to the
// queue's cancel path. This is the one callback that
// must remain lock-free.
func (p *Pipeline) Cancel(chatKey, entryID string) {
	p.Queue.Cancel(chatKey, entryID)
}

func (p *Pipeline) isAbort(text string) bool {
	if text == p.Config.StopCommand {
		return true
	}
	for _, kw := range p.Config.AbortKeywords {
		if text == kw {
			return true
		}
	}
	return false
}

func (p *Pipeline) isDuplicate(chatKey, originMessageID string) bool {
	ttl := p.Config.DedupeTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	key := chatKey + "/" + originMessageID

	p.dedupeMu.Lock()
	defer p.dedupeMu.Unlock()

	now := time.Now()
	for k, seenAt := range p.dedupe {
		if now.Sub(seenAt) > ttl {
			delete(p.dedupe, k)
		}
	}
	if _, ok := p.dedupe[key]; ok {
		return true
	}
	p.dedupe[key] = now
	return false
}

func firstToken(text string) string {
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			return text[:i]
		}
	}
	return text
}
