// Package opencode provides the OpenCode agent runtime and stream adapter.
//
// state.go - Per-invocation stream state
//
// This file contains:
// - textStreamState / toolStreamState, the mutable entries tracking open
//   logical streams keyed by part id and call id
// - Agent-name resolution and retroactive patching of open streams
// - Metadata construction for adapted messages
//
// All registries live for one adapter invocation (one OpenCode session).
// A state entry is evicted exactly once, at completion; a reappearing id
// starts fresh state.

package opencode

import (
	"github.com/bastionworks/bastion/internal/schema"
)

// textStreamState tracks one open text or reasoning stream
type textStreamState struct {
	message   *schema.Message
	index     *int
	lastText  string
	completed bool
}

// toolStreamState tracks one open tool-call stream
type toolStreamState struct {
	message       *schema.Message
	callID        string
	lastArguments *string
	completed     bool
}

// resolveAgentName resolves the agent identity for a part. Order: the
// binding recorded for the part's messageID, the part's own agent field,
// then the part's name when the part itself declares an agent.
func resolveAgentName(part map[string]any, agentByMessageID map[string]string) string {
	if messageID := stringField(part, "messageID"); messageID != "" {
		if name, ok := agentByMessageID[messageID]; ok {
			return name
		}
	}
	if agent := stringField(part, "agent"); agent != "" {
		return agent
	}
	if stringField(part, "type") == PartTypeAgent {
		return stringField(part, "name")
	}
	return ""
}

// buildMetadata nests the part's protocol coordinates and, when resolved,
// the agent identity
func buildMetadata(part map[string]any, agentName string) map[string]any {
	metadata := map[string]any{
		"opencode": map[string]any{
			"session_id": part["sessionID"],
			"message_id": part["messageID"],
			"part_id":    part["id"],
			"part_type":  part["type"],
		},
	}

	if agentName != "" {
		metadata["original_name"] = agentName
		metadata["agent_name"] = agentName
	}

	if partMetadata, ok := part["metadata"].(map[string]any); ok {
		metadata["opencode_part_metadata"] = partMetadata
	}

	return metadata
}

// updateActiveAgentStates rewrites the agent identity on every open
// stream whose message belongs to messageID. Agent identity can be
// learned after a stream already started; holders of the emitted message
// observe the patch through the shared pointer.
func updateActiveAgentStates(
	messageID, agentName string,
	textStates, reasoningStates map[string]*textStreamState,
	toolStates map[string]*toolStreamState,
) {
	for _, state := range textStates {
		applyAgentNameToMessage(state.message, messageID, agentName)
	}
	for _, state := range reasoningStates {
		applyAgentNameToMessage(state.message, messageID, agentName)
	}
	for _, state := range toolStates {
		applyAgentNameToMessage(state.message, messageID, agentName)
	}
}

func applyAgentNameToMessage(message *schema.Message, messageID, agentName string) {
	if message == nil || message.Metadata == nil {
		return
	}
	opencodeMeta, ok := message.Metadata["opencode"].(map[string]any)
	if !ok {
		return
	}
	if opencodeMeta["message_id"] == messageID {
		message.Metadata["original_name"] = agentName
		message.Metadata["agent_name"] = agentName
	}
}
