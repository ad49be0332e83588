// Package opencode provides the OpenCode agent runtime.
//
// executor.go - StreamingExecutor implementation
//
// This file contains:
// - StreamingExecutor struct implementing agent.StreamingExecutor
// - Prompt sending via async HTTP (SendMessage, SendMessages)
// - SSE line reader feeding the stream adapter (readEvents)
//
// The executor subscribes to the OpenCode SSE event stream and feeds raw
// events through the stream adapter, which converts them to canonical
// schema.Event values. Prompts are sent via the async HTTP endpoint, with
// responses arriving via SSE.

package opencode

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/bastionworks/bastion/internal/agent"
	"github.com/bastionworks/bastion/internal/schema"
)

// StreamingExecutor implements agent.StreamingExecutor for OpenCode
type StreamingExecutor struct {
	server    *Server
	sessionID string
	opts      PromptOptions

	ctx      context.Context
	cancel   context.CancelFunc
	eventsCh <-chan schema.Event
	errorsCh chan error
	doneCh   chan struct{}

	mu        sync.RWMutex
	closed    bool
	eventConn io.ReadCloser
}

// Ensure StreamingExecutor implements agent.StreamingExecutor
var _ agent.StreamingExecutor = (*StreamingExecutor)(nil)

// NewStreamingExecutor creates a new streaming executor bound to a session
func NewStreamingExecutor(ctx context.Context, server *Server, sessionID string, opts PromptOptions) (*StreamingExecutor, error) {
	ctx, cancel := context.WithCancel(ctx)

	e := &StreamingExecutor{
		server:    server,
		sessionID: sessionID,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		errorsCh:  make(chan error, 10),
		doneCh:    make(chan struct{}),
	}

	eventConn, err := server.SubscribeEvents(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to events: %w", err)
	}
	e.eventConn = eventConn

	// Raw SSE events flow through the adapter, which emits canonical events
	rawCh := make(chan any)
	events, adaptErrs := AdaptEventStream(ctx, rawCh)
	e.eventsCh = events

	go e.readEvents(rawCh)
	go e.forwardErrors(adaptErrs)

	return e, nil
}

// SendMessage sends a plain text user message to the session
func (e *StreamingExecutor) SendMessage(message string) error {
	if e.IsClosed() {
		return fmt.Errorf("executor is closed")
	}
	parts := []Part{{"type": PartTypeText, "text": message}}
	return e.server.SendPromptAsync(e.ctx, e.sessionID, parts, e.opts)
}

// SendMessages flattens canonical messages into prompt parts and sends them
func (e *StreamingExecutor) SendMessages(messages []*schema.Message) error {
	if e.IsClosed() {
		return fmt.Errorf("executor is closed")
	}
	parts := MessagesToParts(messages)
	if len(parts) == 0 {
		return fmt.Errorf("no sendable content in messages")
	}
	return e.server.SendPromptAsync(e.ctx, e.sessionID, parts, e.opts)
}

// Cancel requests termination of the current operation
func (e *StreamingExecutor) Cancel() error {
	return e.server.AbortSession(e.ctx, e.sessionID)
}

// Events returns a channel for receiving canonical stream events
func (e *StreamingExecutor) Events() <-chan schema.Event {
	return e.eventsCh
}

// Errors returns a channel for receiving errors
func (e *StreamingExecutor) Errors() <-chan error {
	return e.errorsCh
}

// Done returns a channel that closes when the event stream ends
func (e *StreamingExecutor) Done() <-chan struct{} {
	return e.doneCh
}

// Close gracefully shuts down the executor
func (e *StreamingExecutor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.cancel()

	if e.eventConn != nil {
		_ = e.eventConn.Close()
	}

	return nil
}

// RuntimeSessionID returns the OpenCode session ID
func (e *StreamingExecutor) RuntimeSessionID() string {
	return e.sessionID
}

// IsClosed returns whether the executor has been closed
func (e *StreamingExecutor) IsClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// readEvents reads SSE lines, filters for this session, and feeds the adapter
func (e *StreamingExecutor) readEvents(rawCh chan<- any) {
	defer func() {
		close(rawCh)
		close(e.doneCh)
	}()

	reader := bufio.NewReader(e.eventConn)

	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			if err != io.EOF && e.ctx.Err() == nil {
				select {
				case e.errorsCh <- fmt.Errorf("error reading events: %w", err):
				default:
				}
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			continue // Skip malformed events
		}

		// Filter for our session; events without a session ID pass through
		if sid := eventSessionID(raw); sid != "" && sid != e.sessionID {
			continue
		}

		select {
		case rawCh <- raw:
		case <-e.ctx.Done():
			return
		}

		// session.idle marks the turn boundary; the executor is turn
		// scoped, continuation goes through RuntimeSessionID
		if stringField(raw, "type") == EventSessionIdle {
			return
		}
	}
}

// forwardErrors relays adapter errors to the executor error channel
func (e *StreamingExecutor) forwardErrors(adaptErrs <-chan error) {
	for err := range adaptErrs {
		select {
		case e.errorsCh <- err:
		case <-e.ctx.Done():
			return
		}
	}
}

// eventSessionID extracts the session ID an SSE event belongs to, if any
func eventSessionID(raw map[string]any) string {
	props := eventProperties(raw)
	if props == nil {
		return ""
	}
	if sid := stringField(props, "sessionID"); sid != "" {
		return sid
	}
	if info, ok := props["info"].(map[string]any); ok {
		if sid := stringField(info, "sessionID"); sid != "" {
			return sid
		}
	}
	if part, ok := props["part"].(map[string]any); ok {
		if sid := stringField(part, "sessionID"); sid != "" {
			return sid
		}
	}
	return ""
}
