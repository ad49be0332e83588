package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bastionworks/bastion/internal/audit"
	"github.com/bastionworks/bastion/internal/sandbox"
	"github.com/bastionworks/bastion/internal/validation"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// SandboxParams holds arguments for the sandbox tool
type SandboxParams struct {
	Action    string            `json:"action" description:"Action to perform: create, list, get, or release"`
	SandboxID string            `json:"sandbox_id,omitempty" description:"Sandbox identifier (required for get and release)"`
	Name      string            `json:"name,omitempty" description:"Display name for create"`
	Labels    map[string]string `json:"labels,omitempty" description:"Labels to attach on create"`
}

// handleSandbox routes sandbox actions
func (s *Server) handleSandbox(ctx context.Context, req *mcp_sdk.CallToolRequest, params SandboxParams) (*mcp_sdk.CallToolResult, any, error) {
	switch params.Action {
	case "create":
		if err := validation.ValidateName(params.Name); err != nil {
			return nil, nil, err
		}
		tracked, err := s.sandboxes.Create(ctx, params.Name, params.Labels)
		if err != nil {
			audit.LogFailure(audit.OpSandboxCreate, "", "", err)
			return nil, nil, SanitizeError(err, "sandbox create")
		}
		audit.LogSuccess(audit.OpSandboxCreate, tracked.ID, "")
		return nil, sandboxResult(tracked), nil

	case "list":
		tracked := s.sandboxes.List()
		out := make([]map[string]any, 0, len(tracked))
		for _, t := range tracked {
			out = append(out, sandboxResult(t))
		}
		return nil, map[string]any{"sandboxes": out, "count": len(out)}, nil

	case "get":
		if params.SandboxID == "" {
			return nil, nil, fmt.Errorf("sandbox_id is required for get")
		}
		tracked, err := s.sandboxes.Get(params.SandboxID)
		if err != nil {
			return nil, nil, SanitizeError(err, "sandbox get")
		}
		return nil, sandboxResult(tracked), nil

	case "release":
		if params.SandboxID == "" {
			return nil, nil, fmt.Errorf("sandbox_id is required for release")
		}
		if err := s.sandboxes.Release(ctx, params.SandboxID); err != nil {
			audit.LogFailure(audit.OpSandboxRelease, params.SandboxID, "", err)
			return nil, nil, SanitizeError(err, "sandbox release")
		}
		audit.LogSuccess(audit.OpSandboxRelease, params.SandboxID, "")
		return nil, map[string]any{"released": params.SandboxID}, nil

	default:
		return nil, nil, fmt.Errorf("invalid action %q: must be create, list, get, or release", params.Action)
	}
}

// RunShellParams holds arguments for the run_shell tool
type RunShellParams struct {
	SandboxID  string   `json:"sandbox_id" description:"Sandbox to execute in"`
	Command    []string `json:"command" description:"Command and arguments to execute"`
	WorkingDir string   `json:"working_dir,omitempty" description:"Working directory inside the sandbox"`
	TimeoutSec int      `json:"timeout_sec,omitempty" description:"Execution timeout in seconds (default: 120)"`
}

// handleRunShell executes a command inside a sandbox
func (s *Server) handleRunShell(ctx context.Context, req *mcp_sdk.CallToolRequest, params RunShellParams) (*mcp_sdk.CallToolResult, any, error) {
	if params.SandboxID == "" {
		return nil, nil, fmt.Errorf("sandbox_id is required")
	}
	if len(params.Command) == 0 {
		return nil, nil, fmt.Errorf("command is required")
	}

	// Acquire so the exec counts as activity for the idle reaper
	tracked, err := s.sandboxes.Acquire(params.SandboxID)
	if err != nil {
		return nil, nil, SanitizeError(err, "run_shell")
	}

	timeout := 120 * time.Second
	if params.TimeoutSec > 0 {
		timeout = time.Duration(params.TimeoutSec) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.sandboxRuntime.Exec(execCtx, tracked.SandboxID, sandbox.ExecConfig{
		Cmd:          params.Command,
		WorkingDir:   params.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, nil, SanitizeError(err, "run_shell")
	}

	return nil, map[string]any{
		"stdout":    strings.TrimRight(result.Stdout, "\n"),
		"stderr":    strings.TrimRight(result.Stderr, "\n"),
		"exit_code": result.ExitCode,
	}, nil
}

func sandboxResult(t *sandbox.Tracked) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"name":        t.Name,
		"image":       t.Image,
		"created_at":  t.CreatedAt,
		"last_active": t.LastActive(),
	}
}
