package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/bastionworks/bastion/internal/agent"
	"github.com/bastionworks/bastion/internal/deploy"
	"github.com/bastionworks/bastion/internal/logger"
	"github.com/bastionworks/bastion/internal/metrics"
	"github.com/bastionworks/bastion/internal/sandbox"
	"github.com/bastionworks/bastion/internal/session"
	mcp_sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// generateRequestID creates a unique request identifier
func generateRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Server wraps the MCP server with our managers
type Server struct {
	sandboxRuntime sandbox.Runtime
	sandboxes      *sandbox.Manager
	sessions       *session.Store
	agentRuntime   agent.Runtime
	workingDir     string
	mcpServer      *mcp_sdk.Server
	registry       *Registry
	httpServer     *http.Server
}

// ServerConfig holds MCP server configuration
type ServerConfig struct {
	WorkingDir string
}

// NewServer creates a new MCP server instance
func NewServer(sandboxRuntime sandbox.Runtime, sandboxes *sandbox.Manager, sessions *session.Store, agentRuntime agent.Runtime, cfg *ServerConfig) *Server {
	workingDir := "/workspace"
	if cfg != nil && cfg.WorkingDir != "" {
		workingDir = cfg.WorkingDir
	}

	s := &Server{
		sandboxRuntime: sandboxRuntime,
		sandboxes:      sandboxes,
		sessions:       sessions,
		agentRuntime:   agentRuntime,
		workingDir:     workingDir,
		registry:       NewRegistry(),
	}

	// Register all tools with the registry
	s.registerAllTools(s.registry)

	return s
}

// GetRegistry returns the tool registry for external access
func (s *Server) GetRegistry() *Registry {
	return s.registry
}

// Handler builds the full HTTP handler serving the MCP protocol
func (s *Server) Handler() http.Handler {
	s.mcpServer = mcp_sdk.NewServer(&mcp_sdk.Implementation{
		Name:    "bastion",
		Version: "0.1.0",
	}, nil)

	// Register tools from registry
	s.registry.RegisterWithMCPServer(s.mcpServer)

	// Create HTTP handler with streamable transport
	// Enable EventStore for SSE stream resumption support
	mcpHandler := mcp_sdk.NewStreamableHTTPHandler(func(req *http.Request) *mcp_sdk.Server {
		return s.mcpServer
	}, &mcp_sdk.StreamableHTTPOptions{
		EventStore: mcp_sdk.NewMemoryEventStore(nil),
	})

	// Wrap with request ID and logging middleware
	loggingHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), logger.ContextKeyRequestID, requestID)
		r = r.WithContext(ctx)

		logger.Info("HTTP %s %s from %s [request_id=%s]", r.Method, r.URL.Path, r.RemoteAddr, requestID)
		mcpHandler.ServeHTTP(w, r)
	})

	// Rate limit per client IP
	rateLimitedHandler := deploy.DefaultRateLimiter().Middleware(loggingHandler)

	// Create main mux with health endpoints and MCP endpoints
	mainMux := http.NewServeMux()

	// Health endpoints
	mainMux.HandleFunc("/health", s.handleHealthCheck)
	mainMux.HandleFunc("/ready", s.handleReadinessCheck)

	// Metrics endpoint (Prometheus scraping)
	mainMux.Handle("/metrics", metrics.Handler())

	// MCP endpoints - rate limited, wrapped with metrics middleware
	mainMux.Handle("/mcp", metrics.Middleware(rateLimitedHandler))
	mainMux.Handle("/mcp/", metrics.Middleware(rateLimitedHandler))

	return mainMux
}

// Serve starts the MCP HTTP server
func (s *Server) Serve(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	logger.Info("MCP server listening on %s", addr)
	logger.Info("Health check: http://localhost%s/health", addr)
	logger.Info("Metrics: http://localhost%s/metrics", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the MCP HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleHealthCheck is a basic liveness check
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleReadinessCheck verifies the server can serve requests
func (s *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	// Check sandbox runtime availability
	if err := s.sandboxRuntime.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready","reason":"sandbox runtime unavailable"}`))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}
