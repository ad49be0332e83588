package session

import (
	"time"

	"github.com/bastionworks/bastion/internal/schema"
)

// Status represents the state of a session
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Session represents an agent session bound to a sandbox
type Session struct {
	SessionID        string       `json:"session_id"`
	SandboxID        string       `json:"sandbox_id"`
	RuntimeSessionID string       `json:"runtime_session_id"` // backend session ID, for continuation
	Title            string       `json:"title,omitempty"`
	Model            string       `json:"model,omitempty"`
	Agent            string       `json:"agent,omitempty"`
	Status           Status       `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	Turns            []Turn       `json:"turns,omitempty"`
	TotalUsage       schema.Usage `json:"total_usage"`
}

// Turn represents a single prompt/response exchange in a session
type Turn struct {
	TurnNumber  int          `json:"turn_number"`
	Prompt      string       `json:"prompt"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	Output      string       `json:"output"`
	Error       string       `json:"error,omitempty"`
	Usage       schema.Usage `json:"usage"`
}

// Summary is a lightweight view of a session
type Summary struct {
	SessionID string    `json:"session_id"`
	SandboxID string    `json:"sandbox_id"`
	Status    Status    `json:"status"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
}

// ToSummary converts a Session to Summary
func (s *Session) ToSummary() *Summary {
	return &Summary{
		SessionID: s.SessionID,
		SandboxID: s.SandboxID,
		Status:    s.Status,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		TurnCount: len(s.Turns),
	}
}

// ListFilter narrows List results
type ListFilter struct {
	SandboxID string
	Status    Status
}
