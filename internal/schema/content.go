// Package schema defines the canonical message model shared by all agent
// protocol adapters.
//
// content.go - Content variants
//
// This file contains:
// - ContentType enumeration
// - The Content tagged union (text, data, file, image, audio, refusal)
//
// Each content entry belongs to exactly one message, referenced by a
// stable integer index unique within that message.

package schema

// ContentType identifies a content variant
type ContentType string

const (
	ContentTypeText    ContentType = "text"
	ContentTypeData    ContentType = "data"
	ContentTypeFile    ContentType = "file"
	ContentTypeImage   ContentType = "image"
	ContentTypeAudio   ContentType = "audio"
	ContentTypeRefusal ContentType = "refusal"
)

// Content is the tagged union of message content variants
type Content interface {
	Event
	ContentType() ContentType
}

// TextContent carries streamed or complete text
type TextContent struct {
	Index  *int   `json:"index,omitempty"`
	MsgID  string `json:"msg_id,omitempty"`
	Delta  bool   `json:"delta,omitempty"`
	Status Status `json:"status,omitempty"`
	Text   string `json:"text"`
}

func (c *TextContent) isEvent()                 {}
func (c *TextContent) ContentType() ContentType { return ContentTypeText }

// InProgress marks the content in progress and returns it as the event
func (c *TextContent) InProgress() *TextContent {
	c.Status = StatusInProgress
	return c
}

// Completed marks the content completed and returns it as the event
func (c *TextContent) Completed() *TextContent {
	c.Status = StatusCompleted
	return c
}

// DataContent carries an arbitrary structured payload
type DataContent struct {
	Index  *int   `json:"index,omitempty"`
	MsgID  string `json:"msg_id,omitempty"`
	Delta  bool   `json:"delta,omitempty"`
	Status Status `json:"status,omitempty"`
	Data   any    `json:"data"`
}

func (c *DataContent) isEvent()                 {}
func (c *DataContent) ContentType() ContentType { return ContentTypeData }

func (c *DataContent) InProgress() *DataContent {
	c.Status = StatusInProgress
	return c
}

func (c *DataContent) Completed() *DataContent {
	c.Status = StatusCompleted
	return c
}

// FileContent references an external file by URL
type FileContent struct {
	Index    *int   `json:"index,omitempty"`
	MsgID    string `json:"msg_id,omitempty"`
	Status   Status `json:"status,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	FileData string `json:"file_data,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func (c *FileContent) isEvent()                 {}
func (c *FileContent) ContentType() ContentType { return ContentTypeFile }

func (c *FileContent) InProgress() *FileContent {
	c.Status = StatusInProgress
	return c
}

func (c *FileContent) Completed() *FileContent {
	c.Status = StatusCompleted
	return c
}

// ImageContent references an image by URL (prompt direction only)
type ImageContent struct {
	Index    *int   `json:"index,omitempty"`
	MsgID    string `json:"msg_id,omitempty"`
	Status   Status `json:"status,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

func (c *ImageContent) isEvent()                 {}
func (c *ImageContent) ContentType() ContentType { return ContentTypeImage }

// AudioContent references an audio source by URL or URI (prompt direction
// only)
type AudioContent struct {
	Index  *int   `json:"index,omitempty"`
	MsgID  string `json:"msg_id,omitempty"`
	Status Status `json:"status,omitempty"`
	Data   string `json:"data,omitempty"`
}

func (c *AudioContent) isEvent()                 {}
func (c *AudioContent) ContentType() ContentType { return ContentTypeAudio }

// RefusalContent carries a model refusal (prompt direction only)
type RefusalContent struct {
	Index   *int   `json:"index,omitempty"`
	MsgID   string `json:"msg_id,omitempty"`
	Status  Status `json:"status,omitempty"`
	Refusal string `json:"refusal,omitempty"`
}

func (c *RefusalContent) isEvent()                 {}
func (c *RefusalContent) ContentType() ContentType { return ContentTypeRefusal }
