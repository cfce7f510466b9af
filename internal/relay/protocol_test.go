package relay

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := newFrameWriter(&buf)
	r := newFrameReader(&buf)

	want := Event{Kind: EventChat, SessionID: "sess-1", ChatKey: "123", Payload: []byte(`{"text":"hi"}`)}
	if err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := r.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Kind != want.Kind || got.SessionID != want.SessionID || got.ChatKey != want.ChatKey {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestFrameReaderMultipleEvents(t *testing.T) {
	var buf bytes.Buffer
	w := newFrameWriter(&buf)
	r := newFrameReader(&buf)

	events := []Event{
		{Kind: EventHeartbeat, SessionID: "a"},
		{Kind: EventAck, SessionID: "a"},
		{Kind: EventChat, SessionID: "a", ChatKey: "42"},
	}
	for _, ev := range events {
		if err := w.Write(ev); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	for _, want := range events {
		got, err := r.Read()
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if got.Kind != want.Kind || got.ChatKey != want.ChatKey {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}
}
