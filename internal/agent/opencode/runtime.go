// Package opencode provides the OpenCode agent runtime.
//
// runtime.go - agent.Runtime implementation
//
// This file contains:
// - Runtime struct managing per-sandbox OpenCode servers
// - Single-turn execution (Execute)
// - Streaming execution (ExecuteStreaming)

package opencode

import (
	"context"
	"fmt"
	"sync"

	"github.com/bastionworks/bastion/internal/agent"
	"github.com/bastionworks/bastion/internal/sandbox"
)

// Runtime implements agent.Runtime for OpenCode
type Runtime struct {
	sandboxRuntime sandbox.Runtime
	initialized    bool
	defaultModel   string
	serverPort     int

	// Server management per sandbox
	serversMu sync.RWMutex
	servers   map[string]*Server // sandboxID -> server
}

// Ensure Runtime implements agent.Runtime
var _ agent.Runtime = (*Runtime)(nil)

// NewRuntime creates a new OpenCode runtime
func NewRuntime(sandboxRuntime sandbox.Runtime) *Runtime {
	return &Runtime{
		sandboxRuntime: sandboxRuntime,
		servers:        make(map[string]*Server),
	}
}

// Initialize prepares the runtime with configuration
func (r *Runtime) Initialize(ctx context.Context, config *agent.RuntimeConfig) error {
	if config != nil {
		r.defaultModel = config.DefaultModel
		r.serverPort = config.ServerPort
	}
	r.initialized = true
	return nil
}

// Execute runs a single-turn OpenCode session
func (r *Runtime) Execute(ctx context.Context, req *agent.ExecuteRequest) (*agent.ExecuteResponse, error) {
	if !r.initialized {
		return nil, fmt.Errorf("runtime not initialized")
	}

	server, err := r.ensureServer(ctx, req.SandboxID, req.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to start OpenCode server: %w", err)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID, err = server.CreateSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}

	parts := r.promptParts(req)
	if len(parts) == 0 {
		return nil, fmt.Errorf("no sendable content in request")
	}

	result, err := server.SendPrompt(ctx, sessionID, parts, r.promptOptions(req))
	if err != nil {
		return nil, fmt.Errorf("failed to send prompt: %w", err)
	}

	return &agent.ExecuteResponse{
		SessionID: sessionID,
		Result:    result,
	}, nil
}

// ExecuteStreaming starts a bidirectional streaming OpenCode session
func (r *Runtime) ExecuteStreaming(ctx context.Context, req *agent.ExecuteRequest) (agent.StreamingExecutor, error) {
	if !r.initialized {
		return nil, fmt.Errorf("runtime not initialized")
	}

	server, err := r.ensureServer(ctx, req.SandboxID, req.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to start OpenCode server: %w", err)
	}

	// Create or resume session
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID, err = server.CreateSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
	}

	executor, err := NewStreamingExecutor(ctx, server, sessionID, r.promptOptions(req))
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	// Send initial prompt if provided
	if parts := r.promptParts(req); len(parts) > 0 {
		if err := server.SendPromptAsync(ctx, sessionID, parts, r.promptOptions(req)); err != nil {
			_ = executor.Close()
			return nil, fmt.Errorf("failed to send initial prompt: %w", err)
		}
	}

	return executor, nil
}

// promptParts assembles prompt parts for a request. Canonical messages win
// over the plain Prompt shortcut; the system prompt is prepended as text.
func (r *Runtime) promptParts(req *agent.ExecuteRequest) []Part {
	var parts []Part
	if req.SystemPrompt != "" {
		parts = append(parts, Part{"type": PartTypeText, "text": req.SystemPrompt})
	}

	if len(req.Messages) > 0 {
		parts = append(parts, MessagesToParts(req.Messages)...)
	} else if req.Prompt != "" {
		parts = append(parts, Part{"type": PartTypeText, "text": req.Prompt})
	}

	// A lone system prompt with nothing to say is not a prompt
	if len(parts) == 1 && req.SystemPrompt != "" && len(req.Messages) == 0 && req.Prompt == "" {
		return nil
	}
	return parts
}

func (r *Runtime) promptOptions(req *agent.ExecuteRequest) PromptOptions {
	model := req.Model
	if model == "" {
		model = r.defaultModel
	}
	return PromptOptions{Model: model, Agent: req.Agent}
}

// Ping checks if the runtime is available
func (r *Runtime) Ping(ctx context.Context) error {
	// OpenCode needs no external API key; availability follows the sandbox runtime
	return r.sandboxRuntime.Ping(ctx)
}

// Close releases runtime resources
func (r *Runtime) Close() error {
	r.serversMu.Lock()
	defer r.serversMu.Unlock()

	for _, server := range r.servers {
		server.Stop()
	}
	r.servers = make(map[string]*Server)
	r.initialized = false
	return nil
}

// Name returns the runtime identifier
func (r *Runtime) Name() string {
	return "opencode"
}

// IsAvailable returns whether the runtime can be used
func (r *Runtime) IsAvailable() bool {
	return r.initialized
}

// ensureServer ensures an OpenCode server is running in the sandbox
func (r *Runtime) ensureServer(ctx context.Context, sandboxID, workingDir string) (*Server, error) {
	r.serversMu.Lock()
	defer r.serversMu.Unlock()

	if server, ok := r.servers[sandboxID]; ok {
		if server.IsRunning() {
			return server, nil
		}
		// Server died, remove it
		delete(r.servers, sandboxID)
	}

	server := NewServer(r.sandboxRuntime, sandboxID, workingDir, r.serverPort)
	if err := server.Start(ctx); err != nil {
		return nil, err
	}

	r.servers[sandboxID] = server
	return server, nil
}

// StopServer stops the OpenCode server for a sandbox
func (r *Runtime) StopServer(sandboxID string) {
	r.serversMu.Lock()
	defer r.serversMu.Unlock()

	if server, ok := r.servers[sandboxID]; ok {
		server.Stop()
		delete(r.servers, sandboxID)
	}
}
