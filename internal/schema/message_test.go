package schema

import (
	"testing"
)

func TestNewMessageHasID(t *testing.T) {
	msg := NewMessage(MessageTypeMessage, RoleAssistant)
	if msg.ID == "" {
		t.Fatal("expected message id to be set")
	}
	if msg.Status != StatusCreated {
		t.Errorf("expected status created, got %s", msg.Status)
	}
}

func TestAddDeltaContentAssignsIndex(t *testing.T) {
	msg := NewMessage(MessageTypeMessage, RoleAssistant)

	first := msg.AddDeltaContent(&TextContent{Delta: true, Text: "Hel"})
	if first.Index == nil {
		t.Fatal("expected index to be assigned")
	}
	if *first.Index != 0 {
		t.Errorf("expected index 0, got %d", *first.Index)
	}
	if first.Text != "Hel" {
		t.Errorf("expected delta text 'Hel', got %q", first.Text)
	}

	second := msg.AddDeltaContent(&TextContent{Delta: true, Index: first.Index, Text: "lo"})
	if second.Index == nil || *second.Index != 0 {
		t.Fatal("expected delta to keep index 0")
	}
	if second.Text != "lo" {
		t.Errorf("expected returned delta to carry only the increment, got %q", second.Text)
	}

	entry, ok := msg.TextAt(0)
	if !ok {
		t.Fatal("expected text content at index 0")
	}
	if entry.Text != "Hello" {
		t.Errorf("expected accumulated text 'Hello', got %q", entry.Text)
	}
}

func TestAddDeltaContentSeparateStreams(t *testing.T) {
	msg := NewMessage(MessageTypeMessage, RoleAssistant)

	a := msg.AddDeltaContent(&TextContent{Delta: true, Text: "a"})
	b := msg.AddDeltaContent(&TextContent{Delta: true, Text: "b"})

	if *a.Index == *b.Index {
		t.Error("expected distinct indices for distinct streams")
	}
	if len(msg.Content) != 2 {
		t.Errorf("expected 2 content entries, got %d", len(msg.Content))
	}
}

func TestApplyUsageWriteOnce(t *testing.T) {
	msg := NewMessage(MessageTypeMessage, RoleAssistant)

	msg.ApplyUsage(&Usage{InputTokens: 10})
	msg.ApplyUsage(&Usage{InputTokens: 99})

	if msg.Usage == nil {
		t.Fatal("expected usage to be set")
	}
	if msg.Usage.InputTokens != 10 {
		t.Errorf("expected usage to be write-once, got %d", msg.Usage.InputTokens)
	}
}

func TestLifecycleTransitionsShareIdentity(t *testing.T) {
	msg := NewMessage(MessageTypeReasoning, RoleAssistant)

	emitted := msg.InProgress()
	if emitted != msg {
		t.Fatal("expected InProgress to return the same message")
	}
	if emitted.Status != StatusInProgress {
		t.Errorf("expected in_progress status, got %s", emitted.Status)
	}

	// Metadata patched after emission must be visible through the
	// already-emitted value.
	msg.Metadata = map[string]any{"agent_name": "planner"}
	if emitted.Metadata["agent_name"] != "planner" {
		t.Error("expected metadata patch to be observable on emitted message")
	}

	done := msg.Completed()
	if done.Status != StatusCompleted {
		t.Errorf("expected completed status, got %s", done.Status)
	}
}

func TestMessageFromMap(t *testing.T) {
	record := map[string]any{
		"role": "user",
		"content": []any{
			map[string]any{"type": "text", "text": "hi"},
			map[string]any{"type": "file", "file_url": "https://x.test/a.pdf", "filename": "a.pdf"},
			map[string]any{"type": "widget", "text": "fallback"},
		},
	}

	msg, err := MessageFromMap(record)
	if err != nil {
		t.Fatalf("MessageFromMap failed: %v", err)
	}
	if msg.Role != RoleUser {
		t.Errorf("expected role user, got %s", msg.Role)
	}
	if len(msg.Content) != 3 {
		t.Fatalf("expected 3 content entries, got %d", len(msg.Content))
	}
	if _, ok := msg.Content[0].(*TextContent); !ok {
		t.Error("expected first entry to be text content")
	}
	if _, ok := msg.Content[1].(*FileContent); !ok {
		t.Error("expected second entry to be file content")
	}
	raw, ok := msg.Content[2].(*RawContent)
	if !ok {
		t.Fatal("expected third entry to be raw content")
	}
	if raw.Fields["text"] != "fallback" {
		t.Error("expected raw content to keep original fields")
	}
}

func TestMessageFromMapRejectsBadRole(t *testing.T) {
	_, err := MessageFromMap(map[string]any{"role": 42})
	if err == nil {
		t.Fatal("expected coercion error for non-string role")
	}
}
