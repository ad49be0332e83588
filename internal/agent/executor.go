// Package agent provides the agent runtime abstraction layer.
//
// executor.go - StreamingExecutor interface definition
//
// StreamingExecutor enables real-time communication with agent backends.
// Events arrive as canonical schema.Event values (messages and content
// lifecycle transitions) in upstream order, one at a time.

package agent

import "github.com/bastionworks/bastion/internal/schema"

// StreamingExecutor manages a bidirectional streaming agent execution
type StreamingExecutor interface {
	// SendMessage sends a user message to the agent session
	SendMessage(message string) error

	// SendMessages sends canonical messages to the agent session
	SendMessages(messages []*schema.Message) error

	// Cancel requests termination of the current operation
	Cancel() error

	// Events returns a channel for receiving canonical stream events
	Events() <-chan schema.Event

	// Errors returns a channel for receiving errors
	Errors() <-chan error

	// Done returns a channel that closes when execution finishes
	Done() <-chan struct{}

	// Close gracefully shuts down the executor
	Close() error

	// RuntimeSessionID returns the backend's session identifier
	RuntimeSessionID() string

	// IsClosed returns whether the executor has been closed
	IsClosed() bool
}
