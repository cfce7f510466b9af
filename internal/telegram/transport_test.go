package telegram

import "testing"

func TestSplitMessageKeyParsesChatAndMessageID(t *testing.T) {
	chatID, msgID, err := splitMessageKey("12345:67")
	if err != nil {
		t.Fatalf("splitMessageKey: %v", err)
	}
	if chatID != 12345 || msgID != 67 {
		t.Errorf("got (%d, %d), want (12345, 67)", chatID, msgID)
	}
}

func TestSplitMessageKeyRejectsMissingColon(t *testing.T) {
	if _, _, err := splitMessageKey("12345"); err == nil {
		t.Fatal("expected an error for a key with no colon")
	}
}

func TestSplitMessageKeyRejectsNonNumericChatID(t *testing.T) {
	if _, _, err := splitMessageKey("abc:67"); err == nil {
		t.Fatal("expected an error for a non-numeric chat id")
	}
}
