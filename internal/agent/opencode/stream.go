// Package opencode provides the OpenCode agent runtime and stream adapter.
//
// stream.go - OpenCode event stream to canonical event stream
//
// This file contains:
// - AdaptEventStream, the top-level transducer over the upstream event
//   sequence
// - Part dispatch (text, reasoning, tool, file, agent, step markers)
// - The text/reasoning and tool-call stream machines
// - Generic passthrough for anything not otherwise modeled
//
// The transducer is one forward pass: it never reorders events, never
// buffers more than the open stream states, and produces at most one
// output item in flight at a time. A session.error event is the only
// terminal failure; everything else degrades to "no output".

package opencode

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bastionworks/bastion/internal/metrics"
	"github.com/bastionworks/bastion/internal/schema"
)

// streamAdapter carries the mutable state of one adapter invocation.
// Nothing here is shared across invocations.
type streamAdapter struct {
	textStates       map[string]*textStreamState
	reasoningStates  map[string]*textStreamState
	toolStates       map[string]*toolStreamState
	agentByMessageID map[string]string
	usageByMessageID map[string]*schema.Usage
	lastUsage        *schema.Usage
}

func newStreamAdapter() *streamAdapter {
	return &streamAdapter{
		textStates:       make(map[string]*textStreamState),
		reasoningStates:  make(map[string]*textStreamState),
		toolStates:       make(map[string]*toolStreamState),
		agentByMessageID: make(map[string]string),
		usageByMessageID: make(map[string]*schema.Usage),
	}
}

// AdaptEventStream adapts an OpenCode event sequence into the canonical
// schema.Event sequence.
//
// The events channel is unbuffered: the adapter does not pull the next
// upstream event until the consumer has accepted the current output item.
// When the consumer cancels ctx, open stream states are abandoned without
// emitting completions. The errors channel delivers at most one terminal
// error (session.error); the events channel is closed in every exit path.
func AdaptEventStream(ctx context.Context, source <-chan any) (<-chan schema.Event, <-chan error) {
	events := make(chan schema.Event)
	errs := make(chan error, 1)

	adapter := newStreamAdapter()

	go func() {
		defer close(events)
		defer close(errs)

		for {
			var raw any
			var ok bool
			select {
			case <-ctx.Done():
				return
			case raw, ok = <-source:
				if !ok {
					return
				}
			}

			emitted, err := adapter.handleEvent(raw)
			if err != nil {
				metrics.RecordSessionError()
				errs <- err
				return
			}

			for _, item := range emitted {
				select {
				case <-ctx.Done():
					return
				case events <- item:
				}
			}
		}
	}()

	return events, errs
}

// handleEvent processes one raw upstream event and returns the canonical
// events it produces. A non-nil error is terminal for the whole stream.
func (a *streamAdapter) handleEvent(raw any) ([]schema.Event, error) {
	event := normalizeEvent(raw)
	if event == nil {
		return nil, nil
	}

	eventType := stringField(event, "type")
	if eventType == "" {
		return nil, nil
	}
	metrics.RecordAdapterEvent(eventType)

	switch eventType {
	case EventMessageUpdated:
		a.handleMessageUpdated(event)
		return nil, nil

	case EventMessagePartUpdated:
		props := eventProperties(event)
		part, ok := props["part"].(map[string]any)
		if !ok {
			return nil, nil
		}
		delta := stringField(props, "delta")
		return a.handlePart(part, delta), nil

	case EventMessagePartRemoved:
		props := eventProperties(event)
		return a.emitDataMessage(map[string]any{
			"type":      "part-removed",
			"sessionID": props["sessionID"],
			"messageID": props["messageID"],
			"partID":    props["partID"],
		}), nil

	case EventMessageRemoved:
		props := eventProperties(event)
		return a.emitDataMessage(map[string]any{
			"type":      "message-removed",
			"sessionID": props["sessionID"],
			"messageID": props["messageID"],
		}), nil

	case EventSessionError:
		props := eventProperties(event)
		detail := props["error"]
		if detail == nil {
			detail = map[string]any{}
		}
		return nil, schema.NewRuntimeError(
			ErrCodeSessionError,
			stringifySessionError(detail),
			map[string]any{"opencode_error": detail},
		)

	case EventSessionIdle:
		return nil, nil

	case EventSessionStatus:
		// Neither the idle status nor any other status is forwarded;
		// the branch is kept to mirror upstream handling.
		props := eventProperties(event)
		if status, ok := props["status"].(map[string]any); ok {
			if stringField(status, "type") == "idle" {
				return nil, nil
			}
		}
		return nil, nil

	default:
		return a.emitDataMessage(map[string]any{
			"type":       "event",
			"event":      eventType,
			"properties": eventProperties(event),
		}), nil
	}
}

// handleMessageUpdated records agent identity and usage for assistant
// messages. Produces no output.
func (a *streamAdapter) handleMessageUpdated(event map[string]any) {
	info, ok := eventProperties(event)["info"].(map[string]any)
	if !ok || stringField(info, "role") != schema.RoleAssistant {
		return
	}

	messageID := stringField(info, "id")
	agentName := stringField(info, "agent")
	if messageID != "" && agentName != "" {
		a.agentByMessageID[messageID] = agentName
		updateActiveAgentStates(messageID, agentName, a.textStates, a.reasoningStates, a.toolStates)
	}

	if usage := usageFromInfo(info); messageID != "" && usage != nil {
		a.usageByMessageID[messageID] = usage
		a.lastUsage = usage
	}
}

// handlePart routes a message.part.updated part to its handler
func (a *streamAdapter) handlePart(part map[string]any, delta string) []schema.Event {
	switch stringField(part, "type") {
	case PartTypeAgent:
		messageID := stringField(part, "messageID")
		agentName := stringField(part, "name")
		if messageID != "" && agentName != "" {
			a.agentByMessageID[messageID] = agentName
			updateActiveAgentStates(messageID, agentName, a.textStates, a.reasoningStates, a.toolStates)
		}
		return a.emitDataMessage(part)

	case PartTypeStepStart:
		// Step markers are control signals, not user-visible content
		return nil

	case PartTypeText:
		return a.handleTextPart(part, delta, a.textStates, schema.MessageTypeMessage)

	case PartTypeReasoning:
		return a.handleTextPart(part, delta, a.reasoningStates, schema.MessageTypeReasoning)

	case PartTypeTool:
		return a.handleToolPart(part)

	case PartTypeFile:
		return a.handleFilePart(part)

	case PartTypeStepFinish:
		// Step finish carries token/cost accounting for this message
		usage := usageFromStepFinish(part)
		messageID := stringField(part, "messageID")
		if usage != nil && messageID != "" {
			a.usageByMessageID[messageID] = usage
			a.lastUsage = usage
		}
		return nil

	default:
		return a.emitDataMessage(part)
	}
}

// handleTextPart drives the shared text/reasoning stream machine
func (a *streamAdapter) handleTextPart(
	part map[string]any,
	delta string,
	states map[string]*textStreamState,
	messageType schema.MessageType,
) []schema.Event {
	if ignored, ok := part["ignored"].(bool); ok && ignored {
		return nil
	}

	partID := stringField(part, "id")
	if partID == "" {
		return nil
	}
	messageID := stringField(part, "messageID")

	var out []schema.Event

	state, ok := states[partID]
	if !ok {
		message := a.buildMessageForPart(part, messageType, schema.RoleAssistant)
		out = append(out, message.InProgress())
		state = &textStreamState{message: message}
		states[partID] = state
		metrics.RecordStreamOpened(string(messageType))
	}

	deltaText := partDeltaText(part, delta, state.lastText)
	if deltaText != "" {
		emitted := state.message.AddDeltaContent(&schema.TextContent{
			Delta: true,
			Index: state.index,
			Text:  deltaText,
		})
		state.index = emitted.Index
		if emitted.Text != "" {
			out = append(out, emitted)
			metrics.RecordDelta(string(messageType))
		}
	}

	if snapshot, ok := part["text"].(string); ok && snapshot != "" {
		state.lastText = snapshot
	}

	if partIsCompleted(part) && !state.completed {
		if state.index != nil {
			if content, ok := state.message.TextAt(*state.index); ok && content.Text != "" {
				out = append(out, content.Completed())
			}
		}
		applyUsageToMessage(state.message, messageID, a.usageByMessageID, &a.lastUsage)
		out = append(out, state.message.Completed())
		state.completed = true
		delete(states, partID)
		metrics.RecordStreamCompleted(string(messageType))
	}

	return out
}

// handleToolPart drives the tool-call stream machine
func (a *streamAdapter) handleToolPart(part map[string]any) []schema.Event {
	callID := stringField(part, "callID")
	if callID == "" {
		return nil
	}

	state, _ := part["state"].(map[string]any)
	status := stringField(state, "status")
	messageID := stringField(part, "messageID")
	agentName := resolveAgentName(part, a.agentByMessageID)

	var out []schema.Event

	toolState, ok := a.toolStates[callID]
	if !ok {
		message := a.buildMessageForPart(part, schema.MessageTypePluginCall, schema.RoleAssistant)
		out = append(out, message.InProgress())
		toolState = &toolStreamState{message: message, callID: callID}
		a.toolStates[callID] = toolState
		metrics.RecordStreamOpened("tool")
	}

	argumentsJSON := encodeJSON(toolArgumentsFromState(state))
	if toolState.lastArguments == nil || *toolState.lastArguments != argumentsJSON {
		content := a.functionCallContent(toolState.message, callID, stringField(part, "tool"), argumentsJSON)
		out = append(out, content.InProgress())
		toolState.lastArguments = &argumentsJSON
	}

	if (status == ToolStatusCompleted || status == ToolStatusError) && !toolState.completed {
		final := a.functionCallContent(toolState.message, callID, stringField(part, "tool"), argumentsJSON)
		toolState.message.Content = []schema.Content{final}
		applyUsageToMessage(toolState.message, messageID, a.usageByMessageID, &a.lastUsage)
		out = append(out, final.Completed())
		out = append(out, toolState.message.Completed())
		toolState.completed = true
		delete(a.toolStates, callID)
		metrics.RecordStreamCompleted("tool")

		// Synthesize the separate tool-output message
		outputJSON := encodeJSON(toolOutputFromState(state))
		outputMessage := schema.NewMessage(schema.MessageTypePluginCallOutput, schema.RoleTool)
		outputMessage.Metadata = buildMetadata(part, agentName)
		applyUsageToMessage(outputMessage, messageID, a.usageByMessageID, &a.lastUsage)

		zero := 0
		outputContent := &schema.DataContent{
			Index: &zero,
			MsgID: outputMessage.ID,
			Data: schema.FunctionCallOutput{
				CallID: callID,
				Name:   stringField(part, "tool"),
				Output: outputJSON,
			}.ToMap(),
		}
		outputMessage.Content = []schema.Content{outputContent}
		out = append(out, outputContent.Completed())
		out = append(out, outputMessage.Completed())
	}

	return out
}

// handleFilePart emits a file part as a one-shot complete message
func (a *streamAdapter) handleFilePart(part map[string]any) []schema.Event {
	message := a.buildMessageForPart(part, schema.MessageTypeMessage, schema.RoleAssistant)

	zero := 0
	content := &schema.FileContent{
		Index:    &zero,
		MsgID:    message.ID,
		FileURL:  stringField(part, "url"),
		Filename: stringField(part, "filename"),
	}
	message.Content = []schema.Content{content}

	return []schema.Event{message.InProgress(), content.Completed(), message.Completed()}
}

// emitDataMessage wraps an unmodeled part or event dict in a complete
// passthrough message. The exact input always survives under the
// opencode_part key.
func (a *streamAdapter) emitDataMessage(part map[string]any) []schema.Event {
	message := a.buildMessageForPart(part, schema.MessageTypeMessage, schema.RoleAssistant)
	metrics.RecordPassthrough()

	zero := 0
	content := &schema.DataContent{
		Index: &zero,
		MsgID: message.ID,
		Data:  map[string]any{"opencode_part": part},
	}
	message.Content = []schema.Content{content}

	return []schema.Event{message.InProgress(), content.Completed(), message.Completed()}
}

// buildMessageForPart constructs a message carrying the part's metadata
// and best-effort usage
func (a *streamAdapter) buildMessageForPart(
	part map[string]any,
	messageType schema.MessageType,
	role string,
) *schema.Message {
	message := schema.NewMessage(messageType, role)
	message.Metadata = buildMetadata(part, resolveAgentName(part, a.agentByMessageID))
	applyUsageToMessage(message, stringField(part, "messageID"), a.usageByMessageID, &a.lastUsage)
	return message
}

// functionCallContent builds the DataContent snapshot of a tool call
func (a *streamAdapter) functionCallContent(
	message *schema.Message,
	callID, tool, argumentsJSON string,
) *schema.DataContent {
	zero := 0
	return &schema.DataContent{
		Index: &zero,
		MsgID: message.ID,
		Data: schema.FunctionCall{
			CallID:    callID,
			Name:      tool,
			Arguments: argumentsJSON,
		}.ToMap(),
	}
}

// partDeltaText prefers an explicit delta; otherwise derives one from the
// full-text snapshot by prefix diff. A snapshot that does not extend the
// previous text is treated as a reset and returned whole.
func partDeltaText(part map[string]any, delta, previousText string) string {
	if delta != "" {
		return delta
	}

	text, ok := part["text"].(string)
	if !ok || text == "" {
		return ""
	}

	if previousText != "" && len(text) >= len(previousText) && text[:len(previousText)] == previousText {
		return text[len(previousText):]
	}

	return text
}

// partIsCompleted reports whether OpenCode marked the part complete by
// setting time.end
func partIsCompleted(part map[string]any) bool {
	timeInfo, ok := part["time"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = timeInfo["end"]
	return ok
}

// toolArgumentsFromState derives the current tool arguments: a non-empty
// input mapping wins, a raw payload is wrapped, otherwise empty
func toolArgumentsFromState(state map[string]any) map[string]any {
	if state == nil {
		return map[string]any{}
	}

	if input, ok := state["input"].(map[string]any); ok && len(input) > 0 {
		return input
	}

	if raw, ok := state["raw"]; ok && raw != nil && raw != "" {
		return map[string]any{"raw": raw}
	}

	return map[string]any{}
}

// toolOutputFromState collects whichever result fields the tool state
// carries into one payload
func toolOutputFromState(state map[string]any) map[string]any {
	payload := map[string]any{}
	if state == nil {
		return payload
	}

	for _, key := range []string{"output", "error", "metadata", "attachments"} {
		if value, ok := state[key]; ok && value != nil {
			payload[key] = value
		}
	}
	return payload
}

// encodeJSON serializes a payload, degrading to plain string formatting
// when serialization fails
func encodeJSON(payload any) string {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(encoded)
}

// stringifySessionError formats the upstream error detail as
// "name: message"
func stringifySessionError(detail any) string {
	errMap, ok := detail.(map[string]any)
	if !ok {
		return fmt.Sprintf("%v", detail)
	}

	name := stringField(errMap, "name")
	if name == "" {
		name = "opencode_error"
	}
	message := stringField(errMap, "message")
	if message == "" {
		message = stringField(errMap, "description")
	}
	if message == "" {
		message = fmt.Sprintf("%v", errMap)
	}
	return fmt.Sprintf("%s: %s", name, message)
}
