package discordchat

import "testing"

func TestSplitKeyParsesChannelAndMessageID(t *testing.T) {
	channelID, msgID, err := splitKey("chan-1:msg-2")
	if err != nil {
		t.Fatalf("splitKey: %v", err)
	}
	if channelID != "chan-1" || msgID != "msg-2" {
		t.Errorf("got (%q, %q), want (chan-1, msg-2)", channelID, msgID)
	}
}

func TestSplitKeyRejectsMissingColon(t *testing.T) {
	if _, _, err := splitKey("no-colon-here"); err == nil {
		t.Fatal("expected an error for a key with no colon")
	}
}
