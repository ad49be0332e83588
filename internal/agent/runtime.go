// Package agent provides the agent runtime abstraction layer.
//
// runtime.go - Runtime interface definition

package agent

import "context"

// Runtime is the interface for agent execution backends
type Runtime interface {
	// Initialize prepares the runtime with configuration
	Initialize(ctx context.Context, config *RuntimeConfig) error

	// ExecuteStreaming starts a bidirectional streaming session
	ExecuteStreaming(ctx context.Context, request *ExecuteRequest) (StreamingExecutor, error)

	// Execute runs a single-turn execution (blocking)
	Execute(ctx context.Context, request *ExecuteRequest) (*ExecuteResponse, error)

	// Ping checks if the runtime is available and responsive
	Ping(ctx context.Context) error

	// Close releases any resources held by the runtime
	Close() error

	// Name returns the runtime identifier
	Name() string

	// IsAvailable returns whether the runtime can be used
	IsAvailable() bool
}
