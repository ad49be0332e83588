// Package opencode provides the OpenCode agent runtime and stream adapter.
//
// parts.go - Canonical message to OpenCode prompt parts
//
// This file contains:
// - MessagesToParts, flattening a canonical conversation into the parts
//   payload of a prompt request
// - Per-content translation (text, image, audio, file, data, refusal)
//
// Only one message is translated per call: the most recent user message,
// falling back to the last message when no user message exists. Prior
// history is discarded; OpenCode keeps its own session transcript.

package opencode

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"path"

	"github.com/bastionworks/bastion/internal/schema"
)

// Part is one OpenCode prompt part in wire shape
type Part map[string]any

// MessagesToParts converts canonical messages to OpenCode prompt parts.
// Input may be a single *schema.Message, a slice of them, or a slice of
// loosely-shaped records; elements that cannot be coerced are dropped.
func MessagesToParts(messages any) []Part {
	prompt := selectPromptMessage(messages)
	if prompt == nil {
		return nil
	}
	return contentToParts(prompt)
}

// selectPromptMessage picks the message to translate: the most recent
// user message, else the chronologically last survivor
func selectPromptMessage(messages any) *schema.Message {
	switch v := messages.(type) {
	case *schema.Message:
		return v
	case schema.Message:
		return &v
	case []*schema.Message:
		return pickFromSlice(v)
	case []schema.Message:
		converted := make([]*schema.Message, 0, len(v))
		for i := range v {
			converted = append(converted, &v[i])
		}
		return pickFromSlice(converted)
	case []map[string]any:
		converted := make([]*schema.Message, 0, len(v))
		for _, record := range v {
			msg, err := schema.MessageFromMap(record)
			if err != nil {
				continue
			}
			converted = append(converted, msg)
		}
		return pickFromSlice(converted)
	case []any:
		converted := make([]*schema.Message, 0, len(v))
		for _, item := range v {
			switch elem := item.(type) {
			case *schema.Message:
				converted = append(converted, elem)
			case map[string]any:
				msg, err := schema.MessageFromMap(elem)
				if err != nil {
					continue
				}
				converted = append(converted, msg)
			}
		}
		return pickFromSlice(converted)
	default:
		return nil
	}
}

func pickFromSlice(messages []*schema.Message) *schema.Message {
	if len(messages) == 0 {
		return nil
	}
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i] != nil && messages[i].Role == schema.RoleUser {
			return messages[i]
		}
	}
	return messages[len(messages)-1]
}

// contentToParts translates the selected message's content in order,
// emitting zero or one part per entry. Translation never fails; entries
// that produce nothing are skipped.
func contentToParts(message *schema.Message) []Part {
	var parts []Part

	for _, content := range message.Content {
		switch c := content.(type) {
		case *schema.TextContent:
			if c.Text != "" {
				parts = append(parts, Part{"type": "text", "text": c.Text})
			}
		case *schema.ImageContent:
			if c.ImageURL != "" {
				parts = append(parts, filePartFromURL(c.ImageURL, ""))
			}
		case *schema.AudioContent:
			// Audio content holds a URL/URI for the audio source
			if c.Data != "" {
				parts = append(parts, filePartFromURL(c.Data, ""))
			}
		case *schema.FileContent:
			fileURL := c.FileURL
			if fileURL == "" {
				fileURL = c.FileData
			}
			if fileURL != "" {
				parts = append(parts, filePartFromURL(fileURL, c.Filename))
			}
		case *schema.DataContent:
			if part, ok := jsonTextPart(c.Data); ok {
				parts = append(parts, part)
			}
		case *schema.RefusalContent:
			if part, ok := jsonTextPart(c.Refusal); ok {
				parts = append(parts, part)
			}
		default:
			if part, ok := fallbackTextPart(content); ok {
				parts = append(parts, part)
			}
		}
	}

	return parts
}

// jsonTextPart serializes a payload as a text part, degrading to plain
// string formatting when serialization fails
func jsonTextPart(payload any) (Part, bool) {
	text := ""
	if encoded, err := json.Marshal(payload); err == nil {
		text = string(encoded)
	} else {
		text = fmt.Sprintf("%v", payload)
	}
	if text == "" {
		return nil, false
	}
	return Part{"type": "text", "text": text}, true
}

// fallbackTextPart reads a generic text-like field from an unrecognized
// content entry
func fallbackTextPart(content schema.Content) (Part, bool) {
	raw, ok := content.(*schema.RawContent)
	if !ok || raw.Fields == nil {
		return nil, false
	}
	text := raw.Fields["text"]
	if text == nil || text == "" || text == false {
		return nil, false
	}
	return Part{"type": "text", "text": fmt.Sprintf("%v", text)}, true
}

// filePartFromURL builds a file part, guessing the MIME type from the URL
// extension and deriving a filename from the URL path when not supplied
func filePartFromURL(fileURL, filename string) Part {
	mimeType := ""
	parsed, err := url.Parse(fileURL)
	if err == nil && parsed.Path != "" {
		mimeType = mime.TypeByExtension(path.Ext(parsed.Path))
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if filename == "" && err == nil && parsed.Path != "" {
		filename = path.Base(parsed.Path)
		if filename == "." || filename == "/" {
			filename = ""
		}
	}

	part := Part{
		"type": "file",
		"url":  fileURL,
		"mime": mimeType,
	}
	if filename != "" {
		part["filename"] = filename
	}
	return part
}
