package queue

import "testing"

func TestAcquireFirstCallerGetsLockImmediately(t *testing.T) {
	m := NewManager()
	acquired, entry := m.Acquire("chat-1", "msg-1", "entry-1")
	if !acquired || entry != nil {
		t.Fatalf("Acquire = (%v, %v), want (true, nil) for a free chat", acquired, entry)
	}
}

func TestAcquireSecondCallerQueuesAndReleaseWakesIt(t *testing.T) {
	m := NewManager()
	acquired, _ := m.Acquire("chat-1", "msg-1", "entry-1")
	if !acquired {
		t.Fatal("first Acquire should succeed immediately")
	}

	acquired, entry := m.Acquire("chat-1", "msg-2", "entry-2")
	if acquired || entry == nil {
		t.Fatalf("Acquire = (%v, %v), want (false, non-nil) while chat is held", acquired, entry)
	}

	select {
	case <-entry.Done():
		t.Fatal("queued entry must not be woken before Release")
	default:
	}

	m.Release("chat-1")

	select {
	case <-entry.Done():
	default:
		t.Fatal("Release should wake the next queued entry")
	}
	if entry.Cancelled {
		t.Error("a non-cancelled entry should not come back Cancelled")
	}
}

func TestCancelMarksEntryAndEditsIndicator(t *testing.T) {
	m := NewManager()
	m.Acquire("chat-1", "msg-1", "entry-1")
	_, entry := m.Acquire("chat-1", "msg-2", "entry-2")
	m.SetIndicator("chat-1", "entry-2", "ind-2")

	var edited, text string
	m.EditIndicator = func(messageID, t string) error {
		edited, text = messageID, t
		return nil
	}

	m.Cancel("chat-1", "entry-2")
	if !entry.Cancelled {
		t.Error("Cancel should set Cancelled on the target entry")
	}
	if edited != "ind-2" || text != m.CancelledText {
		t.Errorf("EditIndicator called with (%q, %q), want (ind-2, %q)", edited, text, m.CancelledText)
	}
}

func TestReleaseSkipsCancelledEntries(t *testing.T) {
	m := NewManager()
	m.Acquire("chat-1", "msg-1", "entry-1")
	_, first := m.Acquire("chat-1", "msg-2", "entry-2")
	_, second := m.Acquire("chat-1", "msg-3", "entry-3")

	m.Cancel("chat-1", "entry-2")
	m.Release("chat-1")

	select {
	case <-first.Done():
		if !first.Cancelled {
			t.Error("a woken cancelled entry should still report Cancelled")
		}
	default:
		t.Error("Release should wake a cancelled entry so its waiter drops it")
	}
	select {
	case <-second.Done():
	default:
		t.Fatal("Release should skip the cancelled entry and wake the next one")
	}
}

func TestDrainCancelsEveryPendingEntry(t *testing.T) {
	m := NewManager()
	m.Acquire("chat-1", "msg-1", "entry-1")
	_, e1 := m.Acquire("chat-1", "msg-2", "entry-2")
	_, e2 := m.Acquire("chat-1", "msg-3", "entry-3")

	var edits []string
	m.EditIndicator = func(messageID, text string) error {
		edits = append(edits, text)
		return nil
	}
	m.SetIndicator("chat-1", "entry-2", "ind-2")
	m.SetIndicator("chat-1", "entry-3", "ind-3")

	m.Drain("chat-1")

	if !e1.Cancelled || !e2.Cancelled {
		t.Error("Drain should cancel every pending entry")
	}
	if len(edits) != 2 || edits[0] != m.DiscardedText || edits[1] != m.DiscardedText {
		t.Errorf("edits = %v, want two %q", edits, m.DiscardedText)
	}
}

func TestIsBusyReflectsHeldAndQueuedState(t *testing.T) {
	m := NewManager()
	if m.IsBusy("chat-1") {
		t.Error("a fresh chat should not be busy")
	}
	m.Acquire("chat-1", "msg-1", "entry-1")
	if !m.IsBusy("chat-1") {
		t.Error("a held chat should be busy")
	}
	m.Release("chat-1")
	if m.IsBusy("chat-1") {
		t.Error("releasing the only holder with an empty queue should free the chat")
	}
}
