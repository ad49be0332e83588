// Package agent provides the agent runtime abstraction layer.
//
// types.go - Shared types for agent communication
//
// This file contains:
// - ExecuteRequest/ExecuteResponse for agent execution parameters
// - RuntimeType constants for backend selection
//
// Runtimes stream their native events converted to the canonical
// schema.Event model, so event handling is consistent regardless of the
// backend protocol dialect.

package agent

import (
	"github.com/bastionworks/bastion/internal/schema"
)

// RuntimeType identifies the agent runtime backend
type RuntimeType string

const (
	RuntimeTypeOpenCode RuntimeType = "opencode"
)

// ExecuteRequest contains parameters for agent execution
type ExecuteRequest struct {
	// Required
	SandboxID  string
	WorkingDir string

	// Prompt input: canonical messages are preferred; Prompt is a plain
	// text shortcut used when no messages are supplied
	Messages []*schema.Message
	Prompt   string

	// Session management
	SessionID string // Empty for new, set for continuation

	// Agent configuration
	Model        string // "providerID/modelID" format
	Agent        string // Named agent to address, if any
	SystemPrompt string
}

// ExecuteResponse contains output from single-turn execution
type ExecuteResponse struct {
	SessionID string
	Result    string
	Usage     *schema.Usage
}

// RuntimeConfig holds backend-specific initialization settings
type RuntimeConfig struct {
	DefaultModel string
	ServerPort   int
}
