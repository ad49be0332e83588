package opencode

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bastionworks/bastion/internal/schema"
)

// runAdapter feeds raw events through the adapter and collects the output
func runAdapter(t *testing.T, raws ...map[string]any) ([]schema.Event, error) {
	t.Helper()

	source := make(chan any, len(raws))
	for _, raw := range raws {
		source <- raw
	}
	close(source)

	events, errs := AdaptEventStream(context.Background(), source)

	var out []schema.Event
	for event := range events {
		out = append(out, event)
	}
	return out, <-errs
}

func partUpdated(part map[string]any, delta string) map[string]any {
	props := map[string]any{"part": part}
	if delta != "" {
		props["delta"] = delta
	}
	return map[string]any{"type": EventMessagePartUpdated, "properties": props}
}

func textPart(partID, messageID, text string, completed bool) map[string]any {
	part := map[string]any{
		"id":        partID,
		"sessionID": "sess-1",
		"messageID": messageID,
		"type":      PartTypeText,
		"text":      text,
	}
	if completed {
		part["time"] = map[string]any{"start": 1.0, "end": 2.0}
	}
	return part
}

func toolPart(callID, messageID, tool, status string, state map[string]any) map[string]any {
	if state == nil {
		state = map[string]any{}
	}
	state["status"] = status
	return map[string]any{
		"id":        "prt-" + callID,
		"sessionID": "sess-1",
		"messageID": messageID,
		"type":      PartTypeTool,
		"callID":    callID,
		"tool":      tool,
		"state":     state,
	}
}

// collectMessages returns the distinct messages in emission order.
// Lifecycle events share one pointer, so duplicates are collapsed.
func collectMessages(events []schema.Event) []*schema.Message {
	var msgs []*schema.Message
	seen := make(map[*schema.Message]bool)
	for _, event := range events {
		if m, ok := event.(*schema.Message); ok && !seen[m] {
			seen[m] = true
			msgs = append(msgs, m)
		}
	}
	return msgs
}

// messageEvents returns every message event occurrence, duplicates kept
func messageEvents(events []schema.Event) []*schema.Message {
	var msgs []*schema.Message
	for _, event := range events {
		if m, ok := event.(*schema.Message); ok {
			msgs = append(msgs, m)
		}
	}
	return msgs
}

func TestTextStreamDeltasConcatenateToSnapshot(t *testing.T) {
	events, err := runAdapter(t,
		partUpdated(textPart("prt-1", "msg-1", "Hel", false), "Hel"),
		partUpdated(textPart("prt-1", "msg-1", "Hello", false), ""),
		partUpdated(textPart("prt-1", "msg-1", "Hello world", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	var combined strings.Builder
	var deltas []*schema.TextContent
	for _, event := range events {
		if c, ok := event.(*schema.TextContent); ok && c.Delta && c.Status != schema.StatusCompleted {
			deltas = append(deltas, c)
			combined.WriteString(c.Text)
		}
	}

	if got := combined.String(); got != "Hello world" {
		t.Errorf("concatenated deltas = %q, want %q", got, "Hello world")
	}
	if len(deltas) != 3 {
		t.Errorf("delta count = %d, want 3 (Hel, lo, ` world`)", len(deltas))
	}
	for i, d := range deltas[1:] {
		if d.Index == nil || *d.Index != *deltas[0].Index {
			t.Errorf("delta %d index = %v, want same as first", i+1, d.Index)
		}
	}
}

func TestTextStreamLifecycle(t *testing.T) {
	events, err := runAdapter(t,
		partUpdated(textPart("prt-1", "msg-1", "hi", false), "hi"),
		partUpdated(textPart("prt-1", "msg-1", "hi", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := messageEvents(events)
	if len(msgs) != 2 {
		t.Fatalf("message events = %d, want 2 (in_progress, completed)", len(msgs))
	}
	if msgs[0] != msgs[1] {
		t.Error("lifecycle events should share the same message pointer")
	}
	if msgs[1].Status != schema.StatusCompleted {
		t.Errorf("final status = %q, want completed", msgs[1].Status)
	}
	if msgs[0].Type != schema.MessageTypeMessage {
		t.Errorf("message type = %q, want message", msgs[0].Type)
	}

	// The completed content event carries the accumulated text
	var completedText *schema.TextContent
	for _, event := range events {
		if c, ok := event.(*schema.TextContent); ok && c.Status == schema.StatusCompleted {
			completedText = c
		}
	}
	if completedText == nil {
		t.Fatal("no completed text content event")
	}
	if completedText.Text != "hi" {
		t.Errorf("completed text = %q, want %q", completedText.Text, "hi")
	}
}

func TestTextStreamCompletesExactlyOnce(t *testing.T) {
	// A completed part id reported again does not complete twice
	events, err := runAdapter(t,
		partUpdated(textPart("prt-1", "msg-1", "hi", false), "hi"),
		partUpdated(textPart("prt-1", "msg-1", "hi", true), ""),
		partUpdated(textPart("prt-1", "msg-1", "hi", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	// The replayed part id opens fresh state with its own message; the
	// first stream's message appears exactly twice (open, close)
	all := messageEvents(events)
	first := all[0]
	occurrences := 0
	for _, m := range all {
		if m == first {
			occurrences++
		}
	}
	if occurrences != 2 {
		t.Errorf("first stream message event count = %d, want 2", occurrences)
	}
	if first.Status != schema.StatusCompleted {
		t.Error("first stream never completed")
	}
}

func TestReasoningStreamProducesReasoningMessage(t *testing.T) {
	part := textPart("prt-r", "msg-1", "thinking...", true)
	part["type"] = PartTypeReasoning

	events, err := runAdapter(t, partUpdated(part, ""))
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) == 0 {
		t.Fatal("no message events")
	}
	if msgs[0].Type != schema.MessageTypeReasoning {
		t.Errorf("message type = %q, want reasoning", msgs[0].Type)
	}
}

func TestTextAndReasoningStatesAreSeparate(t *testing.T) {
	reasoning := textPart("prt-same", "msg-1", "step one", false)
	reasoning["type"] = PartTypeReasoning

	events, err := runAdapter(t,
		partUpdated(textPart("prt-same", "msg-1", "visible", false), ""),
		partUpdated(reasoning, ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) != 2 {
		t.Fatalf("message events = %d, want 2 (one per stream kind)", len(msgs))
	}
	if msgs[0].ID == msgs[1].ID {
		t.Error("text and reasoning streams with the same part id should be distinct messages")
	}
}

func TestIgnoredTextPartProducesNothing(t *testing.T) {
	part := textPart("prt-1", "msg-1", "hidden", true)
	part["ignored"] = true

	events, err := runAdapter(t, partUpdated(part, ""))
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("ignored part produced %d events, want 0", len(events))
	}
}

func TestEmptyCompletedTextOmitsContentCompletion(t *testing.T) {
	// A part that completes without ever carrying text completes the
	// message but emits no content completion
	events, err := runAdapter(t,
		partUpdated(textPart("prt-1", "msg-1", "", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	for _, event := range events {
		if c, ok := event.(*schema.TextContent); ok && c.Status == schema.StatusCompleted {
			t.Errorf("unexpected completed text content %q", c.Text)
		}
	}
	msgs := collectMessages(events)
	if len(msgs) == 0 || msgs[len(msgs)-1].Status != schema.StatusCompleted {
		t.Error("message should still complete")
	}
}

func TestToolStreamLifecycle(t *testing.T) {
	events, err := runAdapter(t,
		partUpdated(toolPart("call-1", "msg-1", "bash", ToolStatusRunning,
			map[string]any{"input": map[string]any{"command": "ls"}}), ""),
		partUpdated(toolPart("call-1", "msg-1", "bash", ToolStatusCompleted,
			map[string]any{"input": map[string]any{"command": "ls"}, "output": "README.md"}), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) != 2 {
		t.Fatalf("distinct messages = %d, want 2 (call, output)", len(msgs))
	}

	var call, output *schema.Message
	for _, m := range msgs {
		switch m.Type {
		case schema.MessageTypePluginCall:
			call = m
		case schema.MessageTypePluginCallOutput:
			output = m
		}
	}
	if call == nil || call.Status != schema.StatusCompleted {
		t.Fatal("tool call message missing or not completed")
	}
	if output == nil || output.Status != schema.StatusCompleted {
		t.Fatal("tool output message missing or not completed")
	}
	if output.Role != schema.RoleTool {
		t.Errorf("output role = %q, want tool", output.Role)
	}

	// The output message appears after the call message's close event
	callCloseAt, outputAt := -1, -1
	for i, event := range events {
		if m, ok := event.(*schema.Message); ok {
			if m == call {
				callCloseAt = i // last occurrence is the close
			}
			if m == output && outputAt == -1 {
				outputAt = i
			}
		}
	}
	if outputAt < callCloseAt {
		t.Error("tool output message emitted before tool call completed")
	}

	// The call's final content is a single function call payload
	if len(call.Content) != 1 {
		t.Fatalf("call content entries = %d, want 1", len(call.Content))
	}
	data, ok := call.Content[0].(*schema.DataContent)
	if !ok {
		t.Fatal("call content is not DataContent")
	}
	payload, ok := data.Data.(map[string]any)
	if !ok {
		t.Fatal("call content data is not a map")
	}
	if payload["call_id"] != "call-1" || payload["name"] != "bash" {
		t.Errorf("function call payload = %v", payload)
	}
}

func TestToolStreamDeduplicatesUnchangedArguments(t *testing.T) {
	state := map[string]any{"input": map[string]any{"command": "ls"}}
	events, err := runAdapter(t,
		partUpdated(toolPart("call-1", "msg-1", "bash", ToolStatusPending, map[string]any{"input": map[string]any{"command": "ls"}}), ""),
		partUpdated(toolPart("call-1", "msg-1", "bash", ToolStatusRunning, state), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	inProgress := 0
	for _, event := range events {
		if c, ok := event.(*schema.DataContent); ok && c.Status == schema.StatusInProgress {
			inProgress++
		}
	}
	if inProgress != 1 {
		t.Errorf("in-progress content events = %d, want 1 (unchanged arguments deduplicated)", inProgress)
	}
}

func TestToolErrorStatusCompletesStream(t *testing.T) {
	events, err := runAdapter(t,
		partUpdated(toolPart("call-1", "msg-1", "bash", ToolStatusError,
			map[string]any{"error": "command not found"}), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	var output *schema.Message
	for _, m := range collectMessages(events) {
		if m.Type == schema.MessageTypePluginCallOutput {
			output = m
		}
	}
	if output == nil {
		t.Fatal("error status should still synthesize an output message")
	}
	data := output.Content[0].(*schema.DataContent).Data.(map[string]any)
	outJSON, _ := data["output"].(string)
	if !strings.Contains(outJSON, "command not found") {
		t.Errorf("output payload %q should carry the error detail", outJSON)
	}
}

func TestToolPartWithoutCallIDIsDropped(t *testing.T) {
	part := toolPart("", "msg-1", "bash", ToolStatusRunning, nil)
	delete(part, "callID")

	events, err := runAdapter(t, partUpdated(part, ""))
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("tool part without callID produced %d events, want 0", len(events))
	}
}

func TestSessionErrorIsTerminal(t *testing.T) {
	events, err := runAdapter(t,
		map[string]any{
			"type": EventSessionError,
			"properties": map[string]any{
				"sessionID": "sess-1",
				"error":     map[string]any{"name": "boom", "message": "bad state"},
			},
		},
		// Anything after the error must be ignored
		partUpdated(textPart("prt-1", "msg-1", "late", true), ""),
	)
	if err == nil {
		t.Fatal("session.error should surface as a terminal error")
	}

	var runtimeErr *schema.RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("error type = %T, want *schema.RuntimeError", err)
	}
	if runtimeErr.Code != ErrCodeSessionError {
		t.Errorf("error code = %q, want %q", runtimeErr.Code, ErrCodeSessionError)
	}
	if runtimeErr.Message != "boom: bad state" {
		t.Errorf("error message = %q, want %q", runtimeErr.Message, "boom: bad state")
	}
	if _, ok := runtimeErr.Details["opencode_error"]; !ok {
		t.Error("error details should preserve the upstream error payload")
	}
	if len(events) != 0 {
		t.Errorf("events after terminal error = %d, want 0", len(events))
	}
}

func TestSessionErrorWithoutDetail(t *testing.T) {
	_, err := runAdapter(t, map[string]any{
		"type":       EventSessionError,
		"properties": map[string]any{"sessionID": "sess-1"},
	})
	if err == nil {
		t.Fatal("session.error without detail should still be terminal")
	}
	var runtimeErr *schema.RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("error type = %T", err)
	}
	detail, ok := runtimeErr.Details["opencode_error"].(map[string]any)
	if !ok || detail == nil {
		t.Errorf("missing detail should default to an empty map, got %v", runtimeErr.Details["opencode_error"])
	}
}

func TestSessionIdleAndStatusProduceNothing(t *testing.T) {
	events, err := runAdapter(t,
		map[string]any{"type": EventSessionIdle, "properties": map[string]any{"sessionID": "sess-1"}},
		map[string]any{"type": EventSessionStatus, "properties": map[string]any{
			"sessionID": "sess-1",
			"status":    map[string]any{"type": "idle"},
		}},
		map[string]any{"type": EventSessionStatus, "properties": map[string]any{
			"sessionID": "sess-1",
			"status":    map[string]any{"type": "busy"},
		}},
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("idle/status events produced %d outputs, want 0", len(events))
	}
}

func TestUnknownEventPassesThrough(t *testing.T) {
	events, err := runAdapter(t, map[string]any{
		"type":       "server.heartbeat",
		"properties": map[string]any{"ts": 12345.0},
	})
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) == 0 {
		t.Fatal("passthrough should emit a message")
	}
	data, ok := msgs[0].Content[0].(*schema.DataContent)
	if !ok {
		t.Fatal("passthrough content is not DataContent")
	}
	payload := data.Data.(map[string]any)
	wrapped, ok := payload["opencode_part"].(map[string]any)
	if !ok {
		t.Fatal("passthrough payload missing opencode_part")
	}
	if wrapped["event"] != "server.heartbeat" {
		t.Errorf("wrapped event = %v, want server.heartbeat", wrapped["event"])
	}
}

func TestUnknownPartTypePassesThroughIntact(t *testing.T) {
	part := map[string]any{
		"id":        "prt-x",
		"sessionID": "sess-1",
		"messageID": "msg-1",
		"type":      "patch",
		"hash":      "abc123",
	}
	events, err := runAdapter(t, partUpdated(part, ""))
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) == 0 {
		t.Fatal("unknown part should pass through as a message")
	}
	data := msgs[0].Content[0].(*schema.DataContent).Data.(map[string]any)
	wrapped := data["opencode_part"].(map[string]any)
	if wrapped["hash"] != "abc123" {
		t.Error("passthrough should preserve the input part verbatim")
	}
}

func TestStepStartProducesNothing(t *testing.T) {
	part := map[string]any{
		"id":        "prt-s",
		"sessionID": "sess-1",
		"messageID": "msg-1",
		"type":      PartTypeStepStart,
	}
	events, err := runAdapter(t, partUpdated(part, ""))
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}
	if len(events) != 0 {
		t.Errorf("step-start produced %d events, want 0", len(events))
	}
}

func TestStepFinishUsageAppliedToCompletion(t *testing.T) {
	stepFinish := map[string]any{
		"id":        "prt-f",
		"sessionID": "sess-1",
		"messageID": "msg-1",
		"type":      PartTypeStepFinish,
		"tokens": map[string]any{
			"input":  100.0,
			"output": 42.0,
			"cache":  map[string]any{"read": 7.0, "write": 3.0},
		},
		"cost": 0.05,
	}

	events, err := runAdapter(t,
		partUpdated(stepFinish, ""),
		partUpdated(textPart("prt-1", "msg-1", "done", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) == 0 {
		t.Fatal("no message events")
	}
	final := msgs[len(msgs)-1]
	if final.Usage == nil {
		t.Fatal("completed message should carry usage")
	}
	if final.Usage.InputTokens != 100 || final.Usage.OutputTokens != 42 {
		t.Errorf("usage tokens = %+v", final.Usage)
	}
	if final.Usage.CacheReadTokens != 7 || final.Usage.CacheWriteTokens != 3 {
		t.Errorf("cache tokens = %+v", final.Usage)
	}
	if final.Usage.Cost == nil || *final.Usage.Cost != 0.05 {
		t.Errorf("cost = %v, want 0.05", final.Usage.Cost)
	}
}

func TestLastUsageFallbackForUnknownMessageID(t *testing.T) {
	stepFinish := map[string]any{
		"id":        "prt-f",
		"sessionID": "sess-1",
		"messageID": "msg-other",
		"type":      PartTypeStepFinish,
		"tokens":    map[string]any{"input": 10.0, "output": 5.0},
	}

	events, err := runAdapter(t,
		partUpdated(stepFinish, ""),
		partUpdated(textPart("prt-1", "msg-1", "x", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	final := msgs[len(msgs)-1]
	if final.Usage == nil || final.Usage.InputTokens != 10 {
		t.Errorf("session-wide usage fallback not applied: %+v", final.Usage)
	}
}

func TestAgentNameFromMessageUpdated(t *testing.T) {
	messageUpdated := map[string]any{
		"type": EventMessageUpdated,
		"properties": map[string]any{
			"info": map[string]any{
				"id":        "msg-1",
				"sessionID": "sess-1",
				"role":      "assistant",
				"agent":     "planner",
			},
		},
	}

	events, err := runAdapter(t,
		messageUpdated,
		partUpdated(textPart("prt-1", "msg-1", "hi", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) == 0 {
		t.Fatal("no message events")
	}
	if msgs[0].Metadata["agent_name"] != "planner" {
		t.Errorf("agent_name = %v, want planner", msgs[0].Metadata["agent_name"])
	}
	if msgs[0].Metadata["original_name"] != "planner" {
		t.Errorf("original_name = %v, want planner", msgs[0].Metadata["original_name"])
	}
}

func TestAgentNameBackfillsOpenStream(t *testing.T) {
	// The agent identity arrives after the text stream already opened;
	// the already-emitted message observes the patch through the pointer
	messageUpdated := map[string]any{
		"type": EventMessageUpdated,
		"properties": map[string]any{
			"info": map[string]any{
				"id":        "msg-1",
				"sessionID": "sess-1",
				"role":      "assistant",
				"agent":     "planner",
			},
		},
	}

	events, err := runAdapter(t,
		partUpdated(textPart("prt-1", "msg-1", "partial", false), ""),
		messageUpdated,
		partUpdated(textPart("prt-1", "msg-1", "partial done", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	first := collectMessages(events)[0]
	if first.Metadata["agent_name"] != "planner" {
		t.Errorf("retroactive agent_name = %v, want planner", first.Metadata["agent_name"])
	}
}

func TestAgentPartBindsAndPassesThrough(t *testing.T) {
	agentPart := map[string]any{
		"id":        "prt-a",
		"sessionID": "sess-1",
		"messageID": "msg-1",
		"type":      PartTypeAgent,
		"name":      "reviewer",
	}

	events, err := runAdapter(t,
		partUpdated(agentPart, ""),
		partUpdated(textPart("prt-1", "msg-1", "hi", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) != 2 {
		t.Fatalf("distinct messages = %d, want 2 (agent passthrough, text)", len(msgs))
	}
	// The agent part itself passes through
	data, ok := msgs[0].Content[0].(*schema.DataContent)
	if !ok {
		t.Fatal("agent part passthrough missing")
	}
	wrapped := data.Data.(map[string]any)["opencode_part"].(map[string]any)
	if wrapped["name"] != "reviewer" {
		t.Error("agent part should pass through intact")
	}
	// And the binding applies to the subsequent text stream
	if msgs[1].Metadata["agent_name"] != "reviewer" {
		t.Errorf("text stream agent_name = %v, want reviewer", msgs[1].Metadata["agent_name"])
	}
}

func TestFilePartEmitsOneShotMessage(t *testing.T) {
	part := map[string]any{
		"id":        "prt-file",
		"sessionID": "sess-1",
		"messageID": "msg-1",
		"type":      PartTypeFile,
		"url":       "https://example.com/report.pdf",
		"filename":  "report.pdf",
	}

	events, err := runAdapter(t, partUpdated(part, ""))
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("file part events = %d, want 3 (open, content, close)", len(events))
	}
	file, ok := events[1].(*schema.FileContent)
	if !ok {
		t.Fatal("second event is not FileContent")
	}
	if file.FileURL != "https://example.com/report.pdf" || file.Filename != "report.pdf" {
		t.Errorf("file content = %+v", file)
	}
}

func TestPartAndMessageRemovedPassThrough(t *testing.T) {
	events, err := runAdapter(t,
		map[string]any{"type": EventMessagePartRemoved, "properties": map[string]any{
			"sessionID": "sess-1", "messageID": "msg-1", "partID": "prt-1",
		}},
		map[string]any{"type": EventMessageRemoved, "properties": map[string]any{
			"sessionID": "sess-1", "messageID": "msg-1",
		}},
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(events)
	if len(msgs) != 2 {
		t.Fatalf("distinct messages = %d, want 2", len(msgs))
	}
	first := msgs[0].Content[0].(*schema.DataContent).Data.(map[string]any)["opencode_part"].(map[string]any)
	if first["type"] != "part-removed" || first["partID"] != "prt-1" {
		t.Errorf("part-removed payload = %v", first)
	}
	second := msgs[1].Content[0].(*schema.DataContent).Data.(map[string]any)["opencode_part"].(map[string]any)
	if second["type"] != "message-removed" {
		t.Errorf("message-removed payload = %v", second)
	}
}

func TestMetadataCarriesProtocolCoordinates(t *testing.T) {
	events, err := runAdapter(t,
		partUpdated(textPart("prt-1", "msg-1", "hi", true), ""),
	)
	if err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	meta := collectMessages(events)[0].Metadata
	oc, ok := meta["opencode"].(map[string]any)
	if !ok {
		t.Fatal("metadata missing opencode coordinates")
	}
	if oc["session_id"] != "sess-1" || oc["message_id"] != "msg-1" || oc["part_id"] != "prt-1" {
		t.Errorf("opencode coordinates = %v", oc)
	}
	if oc["part_type"] != "text" {
		t.Errorf("part_type = %v, want text", oc["part_type"])
	}
}

func TestContextCancellationAbandonsOpenStreams(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := make(chan any, 1)
	events, errs := AdaptEventStream(ctx, source)

	source <- partUpdated(textPart("prt-1", "msg-1", "partial", false), "")

	// Drain the open events, then cancel mid-stream
	<-events // in-progress message
	<-events // delta
	cancel()

	for range events {
		// Channel must close without a completion event
	}
	if err := <-errs; err != nil {
		t.Errorf("cancellation should not surface an error, got %v", err)
	}
}

func TestRawJSONEventNormalization(t *testing.T) {
	raw := []byte(`{"type":"message.part.updated","properties":{"part":{"id":"prt-1","sessionID":"sess-1","messageID":"msg-1","type":"text","text":"hi","time":{"start":1,"end":2}}}}`)

	source := make(chan any, 1)
	source <- raw
	close(source)

	events, errs := AdaptEventStream(context.Background(), source)
	var out []schema.Event
	for event := range events {
		out = append(out, event)
	}
	if err := <-errs; err != nil {
		t.Fatalf("adapter error = %v", err)
	}

	msgs := collectMessages(out)
	if len(msgs) == 0 || msgs[len(msgs)-1].Status != schema.StatusCompleted {
		t.Error("raw JSON event should drive the text stream to completion")
	}
}
