// Package opencode provides the OpenCode agent runtime.
//
// protocol.go - HTTP communication layer
//
// This file contains:
// - HTTP client methods for OpenCode REST API (doRequest)
// - Prompt sending (SendPrompt, SendPromptAsync)
// - Session abort (AbortSession)
// - SSE event subscription (SubscribeEvents)
//
// OpenCode uses HTTP REST for commands and SSE for event streaming.
// All HTTP requests are executed via curl inside the sandbox.

package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bastionworks/bastion/internal/sandbox"
)

// PromptOptions configures a prompt request
type PromptOptions struct {
	Model string // "providerID/modelID" format (e.g., "anthropic/claude-sonnet-4-5")
	Agent string // OpenCode agent name (e.g., "build", "plan")
}

// promptBody assembles the request body for prompt endpoints
func promptBody(parts []Part, opts PromptOptions) map[string]interface{} {
	body := map[string]interface{}{
		"parts": parts,
	}

	if opts.Model != "" {
		fields := strings.SplitN(opts.Model, "/", 2)
		if len(fields) == 2 {
			body["model"] = map[string]string{
				"providerID": fields[0],
				"modelID":    fields[1],
			}
		}
	}
	if opts.Agent != "" {
		body["agent"] = opts.Agent
	}

	return body
}

// SendPrompt sends a prompt to a session and waits for the response (synchronous)
func (s *Server) SendPrompt(ctx context.Context, sessionID string, parts []Part, opts PromptOptions) (string, error) {
	jsonBody, _ := json.Marshal(promptBody(parts, opts))

	resp, err := s.doRequest(ctx, "POST", fmt.Sprintf("/session/%s/message", sessionID), bytes.NewReader(jsonBody))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("send prompt failed: %s", string(respBody))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	// Extract text from response parts
	var result struct {
		Info struct {
			ID string `json:"id"`
		} `json:"info"`
		Parts []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"parts"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return string(respBody), nil // Return raw response if parse fails
	}

	var texts []string
	for _, part := range result.Parts {
		if part.Type == "text" && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}

	return strings.Join(texts, "\n"), nil
}

// SendPromptAsync sends a prompt asynchronously (returns immediately, events via SSE)
// Uses the /session/:id/prompt_async endpoint
func (s *Server) SendPromptAsync(ctx context.Context, sessionID string, parts []Part, opts PromptOptions) error {
	jsonBody, _ := json.Marshal(promptBody(parts, opts))

	resp, err := s.doRequest(ctx, "POST", fmt.Sprintf("/session/%s/prompt_async", sessionID), bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	// prompt_async returns 204 No Content on success
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("send prompt async failed: %s", string(respBody))
	}

	return nil
}

// AbortSession sends an abort request to stop the current operation
func (s *Server) AbortSession(ctx context.Context, sessionID string) error {
	resp, err := s.doRequest(ctx, "POST", fmt.Sprintf("/session/%s/abort", sessionID), nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return nil
}

// SubscribeEvents connects to the SSE event stream using interactive exec
// Returns a reader that streams SSE events incrementally
func (s *Server) SubscribeEvents(ctx context.Context) (io.ReadCloser, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/event", s.port)
	curlCmd := fmt.Sprintf("curl -sN '%s'", url) // -N disables buffering

	execConfig := sandbox.ExecConfig{
		Cmd:          []string{"sh", "-c", curlCmd},
		WorkingDir:   s.workingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	interactive, err := s.sandboxRuntime.ExecInteractive(ctx, s.sandboxID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to start SSE stream: %w", err)
	}

	// Close stdin since we don't need to send anything
	_ = interactive.Stdin.Close()

	return &sseReader{
		reader:      interactive.Stdout,
		interactive: interactive,
	}, nil
}

// sseReader wraps the interactive exec stdout and handles cleanup
type sseReader struct {
	reader      io.Reader
	interactive *sandbox.InteractiveExec
}

func (r *sseReader) Read(p []byte) (n int, err error) {
	return r.reader.Read(p)
}

func (r *sseReader) Close() error {
	if r.interactive != nil {
		return r.interactive.Close()
	}
	return nil
}

// doRequest executes an HTTP request via exec curl in the sandbox
func (s *Server) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d%s", s.port, path)

	var curlCmd string
	if body != nil {
		bodyBytes, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		// Escape single quotes in body for shell
		escapedBody := strings.ReplaceAll(string(bodyBytes), "'", "'\\''")
		curlCmd = fmt.Sprintf("curl -s -X %s -H 'Content-Type: application/json' -d '%s' '%s'", method, escapedBody, url)
	} else {
		curlCmd = fmt.Sprintf("curl -s -X %s '%s'", method, url)
	}

	execConfig := sandbox.ExecConfig{
		Cmd:          []string{"sh", "-c", curlCmd},
		WorkingDir:   s.workingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	result, err := s.sandboxRuntime.Exec(ctx, s.sandboxID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("curl exec failed: %w", err)
	}

	// Build an http.Response from curl output
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(result.Stdout)),
	}

	// OpenCode error responses carry a name and data payload
	if strings.Contains(result.Stdout, `"name":`) && strings.Contains(result.Stdout, `"data":`) {
		var errResp struct {
			Name string `json:"name"`
		}
		if json.Unmarshal([]byte(result.Stdout), &errResp) == nil && errResp.Name != "" {
			resp.StatusCode = http.StatusBadRequest
		}
	}

	return resp, nil
}
