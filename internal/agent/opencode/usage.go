// Package opencode provides the OpenCode agent runtime and stream adapter.
//
// usage.go - Token/cost accounting extraction
//
// Usage can arrive before or after the parts it accounts for, on
// message.updated infos and on step-finish parts. Extracted records are
// cached per message id with a session-wide last-seen fallback.

package opencode

import (
	"encoding/json"

	"github.com/bastionworks/bastion/internal/schema"
)

// usageFromInfo extracts usage from a message.updated info payload
func usageFromInfo(info map[string]any) *schema.Usage {
	tokens, _ := info["tokens"].(map[string]any)
	return usageFromTokens(tokens, info["cost"])
}

// usageFromStepFinish extracts usage from a step-finish part
func usageFromStepFinish(part map[string]any) *schema.Usage {
	tokens, _ := part["tokens"].(map[string]any)
	return usageFromTokens(tokens, part["cost"])
}

// usageFromTokens builds a usage record from an OpenCode tokens mapping.
// Returns nil when no tokens are present.
func usageFromTokens(tokens map[string]any, cost any) *schema.Usage {
	if len(tokens) == 0 {
		return nil
	}

	cache, _ := tokens["cache"].(map[string]any)
	usage := &schema.Usage{
		InputTokens:      intField(tokens, "input"),
		OutputTokens:     intField(tokens, "output"),
		ReasoningTokens:  intField(tokens, "reasoning"),
		CacheReadTokens:  intField(cache, "read"),
		CacheWriteTokens: intField(cache, "write"),
	}

	if costValue, ok := floatValue(cost); ok {
		usage.Cost = &costValue
	}

	return usage
}

// applyUsageToMessage attaches usage unless the message already has it,
// preferring the per-message-id cache over the session-wide fallback
func applyUsageToMessage(
	message *schema.Message,
	messageID string,
	usageByMessageID map[string]*schema.Usage,
	lastUsage **schema.Usage,
) {
	if message.Usage != nil {
		return
	}

	var usage *schema.Usage
	if messageID != "" {
		usage = usageByMessageID[messageID]
	}
	if usage == nil {
		usage = *lastUsage
	}

	message.ApplyUsage(usage)
}

func intField(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	value, ok := floatValue(m[key])
	if !ok {
		return 0
	}
	return int(value)
}

func floatValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
