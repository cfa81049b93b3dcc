package core

import (
	"bytes"
	"testing"
)

func newTestRuntimeWithChat(t *testing.T) (*Runtime, uint32) {
	t.Helper()
	rt := newTestRuntime(t)
	if err := rt.AddAppTemplate(AppTypeChat, NewChatApp); err != nil {
		t.Fatalf("AddAppTemplate(Chat): %v", err)
	}
	chatID, err := rt.CreateInstance(AppTypeChat)
	if err != nil {
		t.Fatalf("CreateInstance(Chat): %v", err)
	}
	return rt, chatID
}

func encodeChatMessage(topic, text string) []byte {
	out, _ := ArrayToBytes([][]byte{[]byte(topic), []byte(text)})
	return out
}

// TestChatOverwritesLastMessage follows the documented scenario: B sends two
// messages in sequence; only the second survives.
func TestChatOverwritesLastMessage(t *testing.T) {
	rt, chatID := newTestRuntimeWithChat(t)
	b := addrOf(0x0b)
	seedMCMBalance(t, rt, b, 1_000_000)
	maxGas := uint64(100_000)

	if _, _, err := rt.Call(false, b, &maxGas, chatID, SelectorChatSend, encodeChatMessage("world", "Hello !")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if _, _, err := rt.Call(false, b, &maxGas, chatID, SelectorChatSend, encodeChatMessage("alice", "Hi")); err != nil {
		t.Fatalf("second send: %v", err)
	}

	ctx := NoOpContext(rt.appStore, rt.accountStore)
	_, subRecord, idx, err := GetAccountSubRecord(ctx, b, chatID, false)
	if err != nil {
		t.Fatalf("GetAccountSubRecord: %v", err)
	}
	if idx < 0 {
		t.Fatalf("expected a chat sub-record for B")
	}
	parts, err := ParseArray(subRecord[InstanceIDLength:])
	if err != nil {
		t.Fatalf("ParseArray: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if !bytes.Equal(parts[0], []byte("alice")) || !bytes.Equal(parts[1], []byte("Hi")) {
		t.Fatalf("sub-record holds %q/%q, want the second message only", parts[0], parts[1])
	}
}

func TestChatRejectsOversizedMessage(t *testing.T) {
	rt, chatID := newTestRuntimeWithChat(t)
	b := addrOf(0x0b)
	seedMCMBalance(t, rt, b, 1_000_000)
	maxGas := uint64(100_000)

	huge := make([]byte, MaxMessageBytes+1)
	if _, _, err := rt.Call(false, b, &maxGas, chatID, SelectorChatSend, huge); err == nil {
		t.Fatalf("expected oversized message to be rejected")
	}
}
