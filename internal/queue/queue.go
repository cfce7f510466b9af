// Package queue implements the per-chat serialization primitive: a
// mutual-exclusion lock per chat, a visible FIFO queue with cancellable
// entries, and the abort/drain paths. Grounded on
// internal/telegram/bot.go's per-chat channel-map pattern, generalized into
// an explicit queue-entry structure carrying indicator message ids.
package queue

import (
	"container/list"
	"sync"
)

// Entry is one pending chat message waiting on a held lock.
type Entry struct {
	ID              string
	OriginMessageID string
	IndicatorMsgID  string
	Cancelled       bool

	// ready is closed once the entry's turn arrives, and Cancelled has
	// been set definitively (true = drop silently, false = proceed).
	ready chan struct{}
}

// Done returns a channel that is closed when this entry's turn arrives.
func (e *Entry) Done() <-chan struct{} { return e.ready }

// chatState holds one chat's lock + FIFO queue.
type chatState struct {
	mu      sync.Mutex // guards held/entries
	held    bool
	entries *list.List // of *Entry
}

// IndicatorFunc posts a visible "queued" indicator for an entry and returns
// its message id; EditFunc edits an indicator to a terminal string.
type IndicatorFunc func(entry *Entry) (messageID string, err error)
type EditFunc func(messageID, text string) error
type DeleteFunc func(messageID string) error

// Manager owns the per-chat locks and queues. The abort-keyword set and
// the dedupe cache live in the ingress pipeline.
type Manager struct {
	mu    sync.Mutex
	chats map[string]*chatState

	PostIndicator   IndicatorFunc
	EditIndicator   EditFunc
	DeleteIndicator DeleteFunc

	// DiscardedText / CancelledText are the terminal indicator strings of
	// the scenarios 1/2.
	DiscardedText string
	CancelledText string
}

func NewManager() *Manager {
	return &Manager{
		chats:         make(map[string]*chatState),
		DiscardedText: "[Message discarded.]",
		CancelledText: "[Message cancelled.]",
	}
}

func (m *Manager) stateFor(chatKey string) *chatState {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.chats[chatKey]
	if !ok {
		cs = &chatState{entries: list.New()}
		m.chats[chatKey] = cs
	}
	return cs
}

// Acquire tries to take chatKey's lock: if free, acquire immediately
// (ok=true, entry=nil). If held, append a queue entry and return it; the
// caller posts a visible indicator with a cancel button bound to entry.ID,
// then waits on entry.Done().
func (m *Manager) Acquire(chatKey string, originMessageID, entryID string) (acquired bool, entry *Entry) {
	cs := m.stateFor(chatKey)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.held {
		cs.held = true
		return true, nil
	}

	e := &Entry{ID: entryID, OriginMessageID: originMessageID, ready: make(chan struct{})}
	cs.entries.PushBack(e)
	return false, e
}

// Release hands the lock to the next non-cancelled entry (deleting its
// indicator first), or frees the lock if the queue is empty: on lock
// acquisition, delete the indicator and invoke the orchestrator. Cancelled
// entries passed over on the way are woken with Cancelled set, so their
// waiters drop the message.
func (m *Manager) Release(chatKey string) {
	cs := m.stateFor(chatKey)
	for {
		cs.mu.Lock()
		front := cs.entries.Front()
		if front == nil {
			cs.held = false
			cs.mu.Unlock()
			return
		}
		e := front.Value.(*Entry)
		cs.entries.Remove(front)
		cancelled := e.Cancelled
		cs.mu.Unlock()

		if cancelled {
			close(e.ready) // waiter sees Cancelled and drops silently
			continue       // skip to the next entry
		}
		if m.DeleteIndicator != nil && e.IndicatorMsgID != "" {
			_ = m.DeleteIndicator(e.IndicatorMsgID) // failure logged and ignored by the caller
		}
		close(e.ready)
		return
	}
}

// SetIndicator records the message id of an entry's posted indicator, once
// the caller has posted it.
func (m *Manager) SetIndicator(chatKey, entryID, indicatorMsgID string) {
	cs := m.stateFor(chatKey)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for el := cs.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry)
		if e.ID == entryID {
			e.IndicatorMsgID = indicatorMsgID
			return
		}
	}
}

// Cancel edits the indicator to the terminal cancelled string and sets
// the flag. It does not require the lock and must remain callable while
// the chat is busy.
func (m *Manager) Cancel(chatKey, entryID string) {
	cs := m.stateFor(chatKey)
	cs.mu.Lock()
	var target *Entry
	for el := cs.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry)
		if e.ID == entryID {
			e.Cancelled = true
			target = e
			break
		}
	}
	cs.mu.Unlock()

	if target != nil && m.EditIndicator != nil && target.IndicatorMsgID != "" {
		_ = m.EditIndicator(target.IndicatorMsgID, m.CancelledText)
	}
}

// Drain cancels every pending entry for chatKey, editing each indicator to
// the terminal discarded string, used by the abort path to clear a
// backlog in one sweep.
func (m *Manager) Drain(chatKey string) {
	cs := m.stateFor(chatKey)
	cs.mu.Lock()
	var targets []*Entry
	for el := cs.entries.Front(); el != nil; el = el.Next() {
		e := el.Value.(*Entry)
		e.Cancelled = true
		targets = append(targets, e)
	}
	cs.mu.Unlock()

	for _, e := range targets {
		if m.EditIndicator != nil && e.IndicatorMsgID != "" {
			_ = m.EditIndicator(e.IndicatorMsgID, m.DiscardedText)
		}
	}
}

// IsBusy reports whether the chat's lock is held or its queue is
// non-empty, for the model-wizard busy check.
func (m *Manager) IsBusy(chatKey string) bool {
	cs := m.stateFor(chatKey)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.held || cs.entries.Len() > 0
}
