package domain

import (
	"encoding/json"
	"testing"
)

func TestChatEvent_MarshalWire_Message(t *testing.T) {
	e := ChatEvent{ID: 7, Kind: KindMessage, Author: "alice", Text: "hi", Timestamp: 1700000000000}
	b, err := e.MarshalWire()
	if err != nil {
		t.Fatalf("MarshalWire: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "message" || got["author"] != "alice" || got["text"] != "hi" {
		t.Fatalf("unexpected wire shape: %s", b)
	}
	if got["id"].(float64) != 7 || got["timestamp"].(float64) != 1700000000000 {
		t.Fatalf("id/timestamp lost: %s", b)
	}
}

func TestChatEvent_MarshalWire_System(t *testing.T) {
	e := ChatEvent{ID: 3, Kind: KindSystem, Text: "alice joined the room."}
	b, err := e.MarshalWire()
	if err != nil {
		t.Fatalf("MarshalWire: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "system" || got["text"] != "alice joined the room." {
		t.Fatalf("unexpected wire shape: %s", b)
	}
	if _, present := got["author"]; present {
		t.Fatalf("system notice must not carry an author: %s", b)
	}
}

func TestChatEvent_JSONShape(t *testing.T) {
	// History payloads embed the persisted shape directly.
	b, err := json.Marshal(ChatEvent{ID: 1, Kind: KindMessage, Author: "bob", Text: "x", Timestamp: 42})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":1,"kind":"message","author":"bob","text":"x","timestamp":42}`
	if string(b) != want {
		t.Fatalf("json = %s; want %s", b, want)
	}
}
