// Package opencode provides the OpenCode agent runtime and the stream
// adapter translating OpenCode's wire protocol into the canonical
// schema.Message/schema.Content model.
//
// events.go - SSE event type constants
//
// This file contains:
// - Event type constants for OpenCode SSE events
// - Message part type constants
// - Tool state status constants
//
// These constants map to the event types emitted by the OpenCode
// server's /event SSE endpoint.

package opencode

// OpenCode event types mapped from bus events
const (
	// Session events
	EventSessionStatus = "session.status"
	EventSessionIdle   = "session.idle"
	EventSessionError  = "session.error"

	// Message events
	EventMessageUpdated     = "message.updated"
	EventMessageRemoved     = "message.removed"
	EventMessagePartUpdated = "message.part.updated"
	EventMessagePartRemoved = "message.part.removed"
)

// Part types in OpenCode messages
const (
	PartTypeText       = "text"
	PartTypeReasoning  = "reasoning"
	PartTypeTool       = "tool"
	PartTypeFile       = "file"
	PartTypeAgent      = "agent"
	PartTypeStepStart  = "step-start"
	PartTypeStepFinish = "step-finish"
)

// Tool state status values
const (
	ToolStatusPending   = "pending"
	ToolStatusRunning   = "running"
	ToolStatusCompleted = "completed"
	ToolStatusError     = "error"
)

// ErrCodeSessionError is the error code carried by the terminal session
// failure raised for a session.error event
const ErrCodeSessionError = "OPENCODE_SESSION_ERROR"
