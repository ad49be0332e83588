// Package deploy exposes the local HTTP deployment surface.
//
// server.go - HTTP service streaming canonical agent events
//
// This file contains:
// - Server wiring the agent runtime, sandbox manager, and session store
// - POST /v1/process, the SSE streaming prompt endpoint
// - Sandbox and session management endpoints
// - Health, readiness, and metrics endpoints
//
// A process request is one turn: the response streams canonical events
// as SSE until the backend reports the session idle. Continuation uses
// the session id returned on the first turn.

package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bastionworks/bastion/internal/agent"
	"github.com/bastionworks/bastion/internal/audit"
	"github.com/bastionworks/bastion/internal/logger"
	"github.com/bastionworks/bastion/internal/metrics"
	"github.com/bastionworks/bastion/internal/sandbox"
	"github.com/bastionworks/bastion/internal/schema"
	"github.com/bastionworks/bastion/internal/session"
	"github.com/bastionworks/bastion/internal/validation"
)

// Config holds deploy server settings
type Config struct {
	Addr              string
	RequestsPerSecond float64
	Burst             int
}

// Server is the local deployment HTTP service
type Server struct {
	config    Config
	runtime   agent.Runtime
	sandboxes *sandbox.Manager
	sessions  *session.Store

	httpServer *http.Server
}

// NewServer creates the deploy server
func NewServer(config Config, runtime agent.Runtime, sandboxes *sandbox.Manager, sessions *session.Store) *Server {
	return &Server{
		config:    config,
		runtime:   runtime,
		sandboxes: sandboxes,
		sessions:  sessions,
	}
}

// Handler builds the full middleware-wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health and metrics endpoints skip rate limiting
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", metrics.Handler())

	api := http.NewServeMux()
	api.HandleFunc("/v1/process", s.handleProcess)
	api.HandleFunc("/v1/sessions", s.handleSessions)
	api.HandleFunc("/v1/sessions/", s.handleSessionByID)
	api.HandleFunc("/v1/sandboxes", s.handleSandboxes)
	api.HandleFunc("/v1/sandboxes/", s.handleSandboxByID)

	limiter := NewRateLimiter(s.config.RequestsPerSecond, s.config.Burst)
	mux.Handle("/v1/", metrics.Middleware(limiter.Middleware(api)))

	return mux
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.Handler(),
	}
	logger.Slog().Info("deploy server listening", "addr", s.config.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.runtime.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready","reason":"agent runtime unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// ProcessRequest is the body of POST /v1/process
type ProcessRequest struct {
	SandboxID    string           `json:"sandbox_id"`
	SessionID    string           `json:"session_id,omitempty"`
	Model        string           `json:"model,omitempty"`
	Agent        string           `json:"agent,omitempty"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Prompt       string           `json:"prompt,omitempty"`
	Messages     []map[string]any `json:"messages,omitempty"`
}

// handleProcess runs one turn and streams canonical events as SSE
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SandboxID == "" {
		jsonError(w, "sandbox_id is required", http.StatusBadRequest)
		return
	}
	if req.Prompt == "" && len(req.Messages) == 0 {
		jsonError(w, "prompt or messages required", http.StatusBadRequest)
		return
	}
	if err := validation.ValidateModel(req.Model); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	tracked, err := s.sandboxes.Acquire(req.SandboxID)
	if err != nil {
		if errors.Is(err, sandbox.ErrSandboxNotFound) {
			jsonError(w, err.Error(), http.StatusNotFound)
		} else {
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// Resolve or create the session record
	var sess *session.Session
	if req.SessionID != "" {
		sess, err = s.sessions.Get(req.SessionID)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				jsonError(w, err.Error(), http.StatusNotFound)
			} else {
				jsonError(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
	} else {
		sess = &session.Session{
			SandboxID: req.SandboxID,
			Model:     req.Model,
			Agent:     req.Agent,
			Title:     titleFromPrompt(req.Prompt),
		}
		if err := s.sessions.Create(sess); err != nil {
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	messages := coerceMessages(req.Messages)
	executor, err := s.runtime.ExecuteStreaming(r.Context(), &agent.ExecuteRequest{
		SandboxID:    tracked.SandboxID,
		WorkingDir:   "/workspace",
		Messages:     messages,
		Prompt:       req.Prompt,
		SessionID:    sess.RuntimeSessionID,
		Model:        req.Model,
		Agent:        req.Agent,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer func() { _ = executor.Close() }()

	// Persist the backend session id on first contact
	if sess.RuntimeSessionID == "" {
		if rsid := executor.RuntimeSessionID(); rsid != "" {
			sess.RuntimeSessionID = rsid
			_ = s.sessions.SetRuntimeSessionID(sess.SessionID, rsid)
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", sess.SessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	started := time.Now()
	metrics.RecordSessionStart()
	tracker := newTurnTracker(req.Prompt, started)

	status := session.StatusCompleted
	for event := range executor.Events() {
		tracker.observe(event)
		writeSSE(w, flusher, "message", event)
		tracked.Touch()
	}

	// The events channel closed; a terminal error may be pending
	select {
	case err := <-executor.Errors():
		if err != nil {
			status = session.StatusFailed
			tracker.fail(err)
			writeSSE(w, flusher, "error", map[string]any{"error": err.Error()})
		}
	case <-time.After(100 * time.Millisecond):
	}

	writeSSE(w, flusher, "done", map[string]any{"session_id": sess.SessionID})

	turn := tracker.turn(time.Now())
	if err := s.sessions.AppendTurn(sess.SessionID, turn); err != nil {
		logger.Slog().Error("failed to record turn", "session", sess.SessionID, "error", err)
	}
	if err := s.sessions.SetStatus(sess.SessionID, status); err != nil {
		logger.Slog().Error("failed to update session status", "session", sess.SessionID, "error", err)
	}
	metrics.RecordSessionEnd(string(status), time.Since(started).Seconds())
	audit.Log(&audit.Event{
		Operation: audit.OpPromptExecute,
		SandboxID: tracked.ID,
		SessionID: sess.SessionID,
		Success:   status == session.StatusCompleted,
		Error:     turn.Error,
	})
}

// handleSessions serves GET /v1/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := &session.ListFilter{
		SandboxID: r.URL.Query().Get("sandbox_id"),
		Status:    session.Status(r.URL.Query().Get("status")),
	}
	summaries, err := s.sessions.List(filter)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []*session.Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleSessionByID serves GET and DELETE /v1/sessions/{id}
func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		jsonError(w, "invalid session id", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, err := s.sessions.Get(id)
		if err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				jsonError(w, err.Error(), http.StatusNotFound)
			} else {
				jsonError(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, sess)

	case http.MethodDelete:
		if err := s.sessions.Delete(id); err != nil {
			if errors.Is(err, session.ErrSessionNotFound) {
				jsonError(w, err.Error(), http.StatusNotFound)
			} else {
				jsonError(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		audit.LogSuccess(audit.OpSessionDelete, "", id)
		w.WriteHeader(http.StatusNoContent)

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSandboxes serves GET and POST /v1/sandboxes
func (s *Server) handleSandboxes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tracked := s.sandboxes.List()
		out := make([]map[string]any, 0, len(tracked))
		for _, t := range tracked {
			out = append(out, sandboxJSON(t))
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req struct {
			Name   string            `json:"name,omitempty"`
			Labels map[string]string `json:"labels,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := validation.ValidateName(req.Name); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		tracked, err := s.sandboxes.Create(r.Context(), req.Name, req.Labels)
		if err != nil {
			audit.LogFailure(audit.OpSandboxCreate, "", "", err)
			jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}
		audit.LogSuccess(audit.OpSandboxCreate, tracked.ID, "")
		writeJSON(w, http.StatusCreated, sandboxJSON(tracked))

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSandboxByID serves DELETE /v1/sandboxes/{id}
func (s *Server) handleSandboxByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sandboxes/")
	if id == "" || strings.Contains(id, "/") {
		jsonError(w, "invalid sandbox id", http.StatusBadRequest)
		return
	}

	if r.Method != http.MethodDelete {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.sandboxes.Release(r.Context(), id); err != nil {
		audit.LogFailure(audit.OpSandboxRelease, id, "", err)
		if errors.Is(err, sandbox.ErrSandboxNotFound) {
			jsonError(w, err.Error(), http.StatusNotFound)
		} else {
			jsonError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	audit.LogSuccess(audit.OpSandboxRelease, id, "")
	w.WriteHeader(http.StatusNoContent)
}

// turnTracker folds the streamed events into a turn record
type turnTracker struct {
	prompt    string
	startedAt time.Time
	text      strings.Builder
	usage     *schema.Usage
	errText   string
	seen      map[*schema.Message]bool
}

func newTurnTracker(prompt string, startedAt time.Time) *turnTracker {
	return &turnTracker{
		prompt:    prompt,
		startedAt: startedAt,
		seen:      make(map[*schema.Message]bool),
	}
}

func (t *turnTracker) observe(event schema.Event) {
	switch e := event.(type) {
	case *schema.TextContent:
		// Deltas accumulate; the completed entry repeats the full text
		if e.Delta && e.Status != schema.StatusCompleted {
			t.text.WriteString(e.Text)
		}
	case *schema.Message:
		if !t.seen[e] {
			t.seen[e] = true
			return
		}
		// Second sighting is the completion; take its usage
		if e.Usage != nil {
			t.usage = e.Usage
		}
	}
}

func (t *turnTracker) fail(err error) {
	t.errText = err.Error()
}

func (t *turnTracker) turn(completedAt time.Time) *session.Turn {
	turn := &session.Turn{
		Prompt:      t.prompt,
		StartedAt:   t.startedAt,
		CompletedAt: completedAt,
		Output:      t.text.String(),
		Error:       t.errText,
	}
	if t.usage != nil {
		turn.Usage = *t.usage
	}
	return turn
}

// coerceMessages shapes loose request records into canonical messages,
// dropping anything not message-shaped
func coerceMessages(records []map[string]any) []*schema.Message {
	var messages []*schema.Message
	for _, record := range records {
		msg, err := schema.MessageFromMap(record)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

func titleFromPrompt(prompt string) string {
	const maxTitle = 80
	prompt = strings.TrimSpace(prompt)
	if len(prompt) <= maxTitle {
		return prompt
	}
	return prompt[:maxTitle]
}

func sandboxJSON(t *sandbox.Tracked) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"name":        t.Name,
		"image":       t.Image,
		"created_at":  t.CreatedAt,
		"last_active": t.LastActive(),
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
