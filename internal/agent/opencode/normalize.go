// Package opencode provides the OpenCode agent runtime and stream adapter.
//
// normalize.go - Raw event normalization
//
// Upstream events may be decoded maps, raw JSON payloads, or SDK event
// values. Normalization resolves each to a generic mapping with a "type"
// tag, unwrapping envelope nesting on the way. Events that cannot be
// resolved are protocol noise and are skipped, never errors.

package opencode

import "encoding/json"

// Mapper is implemented by SDK event types that can render themselves as
// a generic mapping using wire field names.
type Mapper interface {
	ToMap() map[string]any
}

// DataCarrier is implemented by SDK event wrappers that expose their
// payload mapping directly.
type DataCarrier interface {
	Data() map[string]any
}

// normalizeEvent resolves a raw upstream event to a mapping and unwraps
// envelope nesting. Returns nil when the event is unusable.
func normalizeEvent(raw any) map[string]any {
	if raw == nil {
		return nil
	}

	if event, ok := raw.(map[string]any); ok {
		return unwrapEventPayload(event)
	}

	if mapper, ok := raw.(Mapper); ok {
		if event := mapper.ToMap(); event != nil {
			return unwrapEventPayload(event)
		}
	}

	if carrier, ok := raw.(DataCarrier); ok {
		if event := carrier.Data(); event != nil {
			return unwrapEventPayload(event)
		}
	}

	var encoded []byte
	switch v := raw.(type) {
	case json.RawMessage:
		encoded = v
	case []byte:
		encoded = v
	case string:
		encoded = []byte(v)
	default:
		// Struct-shaped SDK values round-trip through JSON, which honors
		// their wire field aliases.
		marshaled, err := json.Marshal(raw)
		if err != nil {
			return nil
		}
		encoded = marshaled
	}

	var event map[string]any
	if err := json.Unmarshal(encoded, &event); err != nil {
		return nil
	}
	if event == nil {
		return nil
	}
	return unwrapEventPayload(event)
}

// unwrapEventPayload descends through payload/data envelopes until a
// mapping with a "type" key is found
func unwrapEventPayload(event map[string]any) map[string]any {
	current := event
	for {
		if _, ok := current["type"]; ok {
			return current
		}
		if payload, ok := current["payload"].(map[string]any); ok {
			current = payload
			continue
		}
		if data, ok := current["data"].(map[string]any); ok {
			current = data
			continue
		}
		return current
	}
}

// eventProperties returns the event's properties mapping, or an empty map
func eventProperties(event map[string]any) map[string]any {
	if props, ok := event["properties"].(map[string]any); ok {
		return props
	}
	return map[string]any{}
}

// stringField reads a string-valued field from a mapping
func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return value
}
