// Package schema defines the canonical message model shared by all agent
// protocol adapters.
//
// coerce.go - Coercion from untyped message-shaped records
//
// Callers hand adapters loosely-shaped records (decoded JSON maps) as well
// as typed messages. Coercion is best effort: a record that cannot be
// shaped into a Message is reported as an error and dropped by callers.

package schema

import (
	"errors"
	"fmt"
)

// ErrNotMessageShaped reports a record that cannot be coerced to a Message
var ErrNotMessageShaped = errors.New("record is not message-shaped")

// RawContent preserves a content entry whose type tag is not part of the
// canonical union. The original fields survive untouched.
type RawContent struct {
	Type   string         `json:"type,omitempty"`
	Index  *int           `json:"index,omitempty"`
	MsgID  string         `json:"msg_id,omitempty"`
	Status Status         `json:"status,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

func (c *RawContent) isEvent()                 {}
func (c *RawContent) ContentType() ContentType { return ContentType(c.Type) }

// MessageFromMap coerces a decoded record into a Message
func MessageFromMap(record map[string]any) (*Message, error) {
	if record == nil {
		return nil, ErrNotMessageShaped
	}

	msg := &Message{Status: StatusCreated}

	if id, ok := record["id"].(string); ok {
		msg.ID = id
	}
	if role, ok := record["role"]; ok {
		s, ok := role.(string)
		if !ok {
			return nil, fmt.Errorf("%w: role is %T", ErrNotMessageShaped, role)
		}
		msg.Role = s
	}
	if msgType, ok := record["type"].(string); ok {
		msg.Type = MessageType(msgType)
	} else {
		msg.Type = MessageTypeMessage
	}
	if metadata, ok := record["metadata"].(map[string]any); ok {
		msg.Metadata = metadata
	}

	rawContent, ok := record["content"]
	if !ok || rawContent == nil {
		return msg, nil
	}
	entries, ok := rawContent.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: content is %T", ErrNotMessageShaped, rawContent)
	}

	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		msg.Content = append(msg.Content, contentFromMap(entry))
	}

	return msg, nil
}

func contentFromMap(entry map[string]any) Content {
	contentType, _ := entry["type"].(string)

	switch ContentType(contentType) {
	case ContentTypeText:
		text, _ := entry["text"].(string)
		return &TextContent{Text: text}
	case ContentTypeImage:
		url, _ := entry["image_url"].(string)
		return &ImageContent{ImageURL: url}
	case ContentTypeAudio:
		data, _ := entry["data"].(string)
		return &AudioContent{Data: data}
	case ContentTypeFile:
		fileURL, _ := entry["file_url"].(string)
		fileData, _ := entry["file_data"].(string)
		filename, _ := entry["filename"].(string)
		return &FileContent{FileURL: fileURL, FileData: fileData, Filename: filename}
	case ContentTypeData:
		return &DataContent{Data: entry["data"]}
	case ContentTypeRefusal:
		refusal, _ := entry["refusal"].(string)
		return &RefusalContent{Refusal: refusal}
	default:
		return &RawContent{Type: contentType, Fields: entry}
	}
}
