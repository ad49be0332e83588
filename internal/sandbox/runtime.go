package sandbox

import (
	"context"
	"io"
	"time"
)

// Runtime defines the sandbox backend abstraction. Implementations wrap a
// container or VM engine; the Docker implementation is the default.
type Runtime interface {
	// Lifecycle
	Create(ctx context.Context, config CreateConfig) (string, error)
	Start(ctx context.Context, sandboxID string) error
	Stop(ctx context.Context, sandboxID string) error
	Remove(ctx context.Context, sandboxID string, force bool) error

	// Execution
	Exec(ctx context.Context, sandboxID string, config ExecConfig) (*ExecResult, error)
	ExecInteractive(ctx context.Context, sandboxID string, config ExecConfig) (*InteractiveExec, error)

	// Inspection
	Inspect(ctx context.Context, sandboxID string) (*Info, error)
	Logs(ctx context.Context, sandboxID string, opts LogsOptions) (string, error)
	Status(ctx context.Context, sandboxID string) (Status, error)

	// Images
	ImageExists(ctx context.Context, imageName string) (bool, error)
	Pull(ctx context.Context, imageName string) error

	// Health
	Ping(ctx context.Context) error
	Close() error

	// Metadata
	Name() string
	IsAvailable() bool
}

// InteractiveExec represents an interactive command execution with I/O pipes
type InteractiveExec struct {
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser
	done   chan struct{}
	wait   func() (int, error)
}

// NewInteractiveExec creates a new InteractiveExec
func NewInteractiveExec(stdin io.WriteCloser, stdout, stderr io.ReadCloser, wait func() (int, error)) *InteractiveExec {
	return &InteractiveExec{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		done:   make(chan struct{}),
		wait:   wait,
	}
}

// Done returns a channel that is closed when the process exits
func (e *InteractiveExec) Done() <-chan struct{} {
	return e.done
}

// Wait waits for the process to exit and returns the exit code
func (e *InteractiveExec) Wait() (int, error) {
	code, err := e.wait()
	select {
	case <-e.done:
	default:
		close(e.done)
	}
	return code, err
}

// Close closes all I/O streams
func (e *InteractiveExec) Close() error {
	if e.Stdin != nil {
		_ = e.Stdin.Close()
	}
	if e.Stdout != nil {
		_ = e.Stdout.Close()
	}
	if e.Stderr != nil {
		_ = e.Stderr.Close()
	}
	return nil
}

// CreateConfig for sandbox creation
type CreateConfig struct {
	Name        string
	Image       string
	Cmd         []string
	Entrypoint  []string
	Env         []string
	WorkingDir  string
	Mounts      []Mount
	Labels      map[string]string
	Init        bool
	AutoRemove  bool
	NetworkMode string
	Memory      string // Memory limit (e.g., "4G", "2048M")
	CPUs        int    // Number of CPUs
}

// MountType represents the type of mount
type MountType string

const (
	MountTypeBind   MountType = "bind"
	MountTypeVolume MountType = "volume"
	MountTypeTmpfs  MountType = "tmpfs"
)

// Mount represents a bind mount or volume
type Mount struct {
	Type     MountType
	Source   string
	Target   string
	ReadOnly bool
}

// ExecConfig for command execution
type ExecConfig struct {
	Cmd          []string
	Env          []string
	WorkingDir   string
	AttachStdout bool
	AttachStderr bool
	AttachStdin  bool
	TTY          bool
	User         string
}

// ExecResult contains execution output
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// LogsOptions for log retrieval
type LogsOptions struct {
	Tail       string
	Timestamps bool
}

// Info contains inspection data
type Info struct {
	ID        string
	Name      string
	Image     string
	Status    Status
	IPAddress string
	Mounts    []Mount
	Env       []string
	CreatedAt time.Time
}

// Status enum
type Status string

const (
	StatusCreated Status = "created"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
	StatusExited  Status = "exited"
	StatusDead    Status = "dead"
	StatusUnknown Status = "unknown"
)
