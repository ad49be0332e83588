package mcp

import (
	"context"
	"fmt"

	"github.com/bastionworks/bastion/internal/session"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// SessionParams holds arguments for the session tool
type SessionParams struct {
	Action    string `json:"action" description:"Action to perform: list, get, or delete"`
	SessionID string `json:"session_id,omitempty" description:"Session identifier (required for get and delete)"`
	SandboxID string `json:"sandbox_id,omitempty" description:"Filter list by sandbox"`
	Status    string `json:"status,omitempty" description:"Filter list by status: active, completed, or failed"`
}

// handleSession routes session actions
func (s *Server) handleSession(ctx context.Context, req *mcp_sdk.CallToolRequest, params SessionParams) (*mcp_sdk.CallToolResult, any, error) {
	switch params.Action {
	case "list":
		summaries, err := s.sessions.List(&session.ListFilter{
			SandboxID: params.SandboxID,
			Status:    session.Status(params.Status),
		})
		if err != nil {
			return nil, nil, SanitizeError(err, "session list")
		}
		return nil, map[string]any{"sessions": summaries, "count": len(summaries)}, nil

	case "get":
		if params.SessionID == "" {
			return nil, nil, fmt.Errorf("session_id is required for get")
		}
		sess, err := s.sessions.Get(params.SessionID)
		if err != nil {
			return nil, nil, SanitizeError(err, "session get")
		}
		return nil, sess, nil

	case "delete":
		if params.SessionID == "" {
			return nil, nil, fmt.Errorf("session_id is required for delete")
		}
		if err := s.sessions.Delete(params.SessionID); err != nil {
			return nil, nil, SanitizeError(err, "session delete")
		}
		return nil, map[string]any{"deleted": params.SessionID}, nil

	default:
		return nil, nil, fmt.Errorf("invalid action %q: must be list, get, or delete", params.Action)
	}
}
