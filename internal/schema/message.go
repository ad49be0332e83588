// Package schema defines the canonical message model shared by all agent
// protocol adapters.
//
// message.go - Message type and lifecycle
//
// This file contains:
// - MessageType and Role enumerations
// - Message with lifecycle transitions (InProgress, Completed)
// - Delta accumulation (AddDeltaContent)
//
// Messages are passed by pointer so that late-arriving information
// (agent identity, usage accounting) patched onto an already-emitted
// message is observed by every holder of that message.

package schema

import (
	"github.com/google/uuid"
)

// MessageType identifies the kind of canonical message
type MessageType string

const (
	MessageTypeMessage          MessageType = "message"
	MessageTypeReasoning        MessageType = "reasoning"
	MessageTypePluginCall       MessageType = "plugin_call"
	MessageTypePluginCallOutput MessageType = "plugin_call_output"
	MessageTypeError            MessageType = "error"
)

// Roles used on canonical messages
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
	RoleSystem    = "system"
)

// Status tracks the lifecycle of a message or content entry
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Event is one item of a canonical lifecycle stream. The concrete type is
// either *Message or one of the Content variants; consumers type-switch.
type Event interface {
	isEvent()
}

// Message is the canonical representation of one agent message
type Message struct {
	ID       string         `json:"id"`
	Type     MessageType    `json:"type"`
	Role     string         `json:"role"`
	Status   Status         `json:"status"`
	Content  []Content      `json:"content,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Usage    *Usage         `json:"usage,omitempty"`
}

func (m *Message) isEvent() {}

// NewMessage creates a message with a fresh id
func NewMessage(msgType MessageType, role string) *Message {
	return &Message{
		ID:     "msg_" + uuid.New().String(),
		Type:   msgType,
		Role:   role,
		Status: StatusCreated,
	}
}

// InProgress marks the message in progress and returns it as the event
// representing that transition
func (m *Message) InProgress() *Message {
	m.Status = StatusInProgress
	return m
}

// Completed marks the message completed and returns it as the event
// representing that transition
func (m *Message) Completed() *Message {
	m.Status = StatusCompleted
	return m
}

// AddDeltaContent folds a text delta into the message.
//
// If the delta carries no index, the next free index is assigned, a new
// content entry is appended holding the delta text, and the returned
// content carries exactly that delta text plus the assigned index. If the
// delta's index matches an existing entry, the delta text is concatenated
// onto that entry in place and the returned content carries just the
// incoming delta text and the same index. Callers route follow-up deltas
// with the returned index and emit the returned content only when its
// text is non-empty.
func (m *Message) AddDeltaContent(delta *TextContent) *TextContent {
	if delta.Index == nil {
		index := len(m.Content)
		entry := &TextContent{
			Index: &index,
			Delta: true,
			MsgID: m.ID,
			Text:  delta.Text,
		}
		m.Content = append(m.Content, entry)
		return &TextContent{
			Index: &index,
			Delta: true,
			MsgID: m.ID,
			Text:  delta.Text,
		}
	}

	index := *delta.Index
	if index >= 0 && index < len(m.Content) {
		if entry, ok := m.Content[index].(*TextContent); ok {
			entry.Text += delta.Text
		}
	}
	return &TextContent{
		Index: &index,
		Delta: true,
		MsgID: m.ID,
		Text:  delta.Text,
	}
}

// ApplyUsage attaches a usage record unless one is already set. Once set,
// usage is never overwritten.
func (m *Message) ApplyUsage(usage *Usage) {
	if m.Usage != nil || usage == nil {
		return
	}
	m.Usage = usage
}

// TextAt returns the text content at the given index, if present
func (m *Message) TextAt(index int) (*TextContent, bool) {
	if index < 0 || index >= len(m.Content) {
		return nil, false
	}
	text, ok := m.Content[index].(*TextContent)
	return text, ok
}
