package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bastionworks/bastion/internal/agent"
	"github.com/bastionworks/bastion/internal/audit"
	"github.com/bastionworks/bastion/internal/session"
	"github.com/bastionworks/bastion/internal/validation"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// PromptParams holds arguments for the prompt tool
type PromptParams struct {
	SandboxID    string `json:"sandbox_id" description:"Sandbox to run the agent in"`
	Prompt       string `json:"prompt" description:"Task text to send to the agent"`
	SessionID    string `json:"session_id,omitempty" description:"Existing session to continue; creates new if not provided"`
	Model        string `json:"model,omitempty" description:"Model in providerID/modelID format"`
	Agent        string `json:"agent,omitempty" description:"Named agent to address"`
	SystemPrompt string `json:"system_prompt,omitempty" description:"System prompt for a new session"`
}

// handlePrompt runs one blocking agent turn and records it
func (s *Server) handlePrompt(ctx context.Context, req *mcp_sdk.CallToolRequest, params PromptParams) (*mcp_sdk.CallToolResult, any, error) {
	if params.SandboxID == "" {
		return nil, nil, fmt.Errorf("sandbox_id is required")
	}
	if params.Prompt == "" {
		return nil, nil, fmt.Errorf("prompt is required")
	}
	if err := validation.ValidateModel(params.Model); err != nil {
		return nil, nil, err
	}

	tracked, err := s.sandboxes.Acquire(params.SandboxID)
	if err != nil {
		return nil, nil, SanitizeError(err, "prompt")
	}

	var sess *session.Session
	if params.SessionID != "" {
		sess, err = s.sessions.Get(params.SessionID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				return nil, nil, err
			}
			return nil, nil, SanitizeError(err, "prompt")
		}
	} else {
		sess = &session.Session{
			SandboxID: params.SandboxID,
			Model:     params.Model,
			Agent:     params.Agent,
			Title:     params.Prompt,
		}
		if err := s.sessions.Create(sess); err != nil {
			return nil, nil, SanitizeError(err, "prompt")
		}
	}

	started := time.Now()
	response, err := s.agentRuntime.Execute(ctx, &agent.ExecuteRequest{
		SandboxID:    tracked.SandboxID,
		WorkingDir:   s.workingDir,
		Prompt:       params.Prompt,
		SessionID:    sess.RuntimeSessionID,
		Model:        params.Model,
		Agent:        params.Agent,
		SystemPrompt: params.SystemPrompt,
	})

	turn := &session.Turn{
		Prompt:      params.Prompt,
		StartedAt:   started,
		CompletedAt: time.Now(),
	}
	status := session.StatusCompleted
	if err != nil {
		turn.Error = err.Error()
		status = session.StatusFailed
	} else {
		turn.Output = response.Result
		if response.Usage != nil {
			turn.Usage = *response.Usage
		}
		if sess.RuntimeSessionID == "" && response.SessionID != "" {
			_ = s.sessions.SetRuntimeSessionID(sess.SessionID, response.SessionID)
		}
	}

	if recordErr := s.sessions.AppendTurn(sess.SessionID, turn); recordErr != nil {
		return nil, nil, SanitizeError(recordErr, "prompt")
	}
	_ = s.sessions.SetStatus(sess.SessionID, status)
	audit.Log(&audit.Event{
		Operation: audit.OpPromptExecute,
		SandboxID: params.SandboxID,
		SessionID: sess.SessionID,
		Success:   err == nil,
		Error:     turn.Error,
	})

	if err != nil {
		return nil, nil, SanitizeError(err, "prompt")
	}

	result := map[string]any{
		"session_id": sess.SessionID,
		"result":     response.Result,
	}
	if response.Usage != nil {
		result["usage"] = response.Usage
	}
	return nil, result, nil
}
