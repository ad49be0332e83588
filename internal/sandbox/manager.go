// Package sandbox provides the sandbox runtime abstraction and lifecycle management.
//
// manager.go - sandbox lifecycle manager with heartbeat tracking
//
// This file contains:
// - Manager: creates, tracks, and reaps sandboxes
// - Heartbeat tracking: per-sandbox last-active timestamps
// - Idle reaper: cron-scheduled scan that removes expired sandboxes

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bastionworks/bastion/internal/logger"
	"github.com/bastionworks/bastion/internal/metrics"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

var (
	// ErrSandboxNotFound is returned when a sandbox ID is not tracked by the manager
	ErrSandboxNotFound = errors.New("sandbox not found")
)

// reapParser is configured for standard 5-field cron (minute hour day month weekday)
var reapParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ManagerConfig holds sandbox manager settings
type ManagerConfig struct {
	Image        string        // default image for new sandboxes
	WorkingDir   string        // working directory inside the sandbox
	Memory       string        // memory limit, e.g. "4G"
	CPUs         int           // CPU limit
	NetworkMode  string        // docker network mode
	IdleTTL      time.Duration // how long a sandbox may sit untouched before reaping
	ReapSchedule string        // cron expression for the reaper scan
}

// Tracked is a sandbox under management with its heartbeat state
type Tracked struct {
	ID         string
	SandboxID  string // runtime container ID
	Name       string
	Image      string
	CreatedAt  time.Time
	lastActive time.Time
	activeMu   sync.Mutex
}

// Touch records activity on the sandbox, resetting its idle clock
func (t *Tracked) Touch() {
	t.activeMu.Lock()
	t.lastActive = time.Now()
	t.activeMu.Unlock()
}

// LastActive returns the time of the most recent activity
func (t *Tracked) LastActive() time.Time {
	t.activeMu.Lock()
	defer t.activeMu.Unlock()
	return t.lastActive
}

// Manager creates, tracks, and reaps sandboxes on top of a Runtime
type Manager struct {
	runtime Runtime
	config  ManagerConfig

	sandboxes map[string]*Tracked // manager ID -> tracked sandbox
	mu        sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a sandbox manager
func NewManager(runtime Runtime, config ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runtime:   runtime,
		config:    config,
		sandboxes: make(map[string]*Tracked),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Create provisions and starts a new sandbox, pulling the image if needed
func (m *Manager) Create(ctx context.Context, name string, labels map[string]string) (*Tracked, error) {
	image := m.config.Image

	exists, err := m.runtime.ImageExists(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("failed to check image: %w", err)
	}
	if !exists {
		logger.Slog().Info("pulling sandbox image", "image", image)
		if err := m.runtime.Pull(ctx, image); err != nil {
			return nil, fmt.Errorf("failed to pull image: %w", err)
		}
	}

	id := "sbx_" + uuid.New().String()
	if name == "" {
		name = id
	}

	if labels == nil {
		labels = make(map[string]string)
	}
	labels["bastion.sandbox.id"] = id

	sandboxID, err := m.runtime.Create(ctx, CreateConfig{
		Name:        name,
		Image:       image,
		WorkingDir:  m.config.WorkingDir,
		Labels:      labels,
		Memory:      m.config.Memory,
		CPUs:        m.config.CPUs,
		NetworkMode: m.config.NetworkMode,
		Init:        true,
		// Keep the container alive for exec-based workloads
		Cmd: []string{"sleep", "infinity"},
	})
	if err != nil {
		return nil, err
	}

	if err := m.runtime.Start(ctx, sandboxID); err != nil {
		// Best effort cleanup of the half-created container
		_ = m.runtime.Remove(ctx, sandboxID, true)
		return nil, err
	}

	tracked := &Tracked{
		ID:         id,
		SandboxID:  sandboxID,
		Name:       name,
		Image:      image,
		CreatedAt:  time.Now(),
		lastActive: time.Now(),
	}

	m.mu.Lock()
	m.sandboxes[id] = tracked
	count := len(m.sandboxes)
	m.mu.Unlock()

	metrics.SetSandboxesRunning(float64(count))
	logger.Slog().Info("sandbox created", "id", id, "container", sandboxID, "image", image)

	return tracked, nil
}

// Get returns a tracked sandbox by manager ID
func (m *Manager) Get(id string) (*Tracked, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tracked, ok := m.sandboxes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSandboxNotFound, id)
	}
	return tracked, nil
}

// Acquire returns a sandbox and records activity on it
func (m *Manager) Acquire(id string) (*Tracked, error) {
	tracked, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	tracked.Touch()
	return tracked, nil
}

// List returns all tracked sandboxes
func (m *Manager) List() []*Tracked {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Tracked, 0, len(m.sandboxes))
	for _, t := range m.sandboxes {
		out = append(out, t)
	}
	return out
}

// Release stops and removes a sandbox
func (m *Manager) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	tracked, ok := m.sandboxes[id]
	if ok {
		delete(m.sandboxes, id)
	}
	count := len(m.sandboxes)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSandboxNotFound, id)
	}

	metrics.SetSandboxesRunning(float64(count))

	if err := m.runtime.Stop(ctx, tracked.SandboxID); err != nil {
		logger.Slog().Warn("failed to stop sandbox, forcing removal", "id", id, "error", err)
	}
	if err := m.runtime.Remove(ctx, tracked.SandboxID, true); err != nil {
		return fmt.Errorf("failed to remove sandbox %s: %w", id, err)
	}

	logger.Slog().Info("sandbox released", "id", id)
	return nil
}

// StartReaper begins the cron-scheduled idle sandbox reaper
func (m *Manager) StartReaper() error {
	sched, err := reapParser.Parse(m.config.ReapSchedule)
	if err != nil {
		return fmt.Errorf("invalid reap schedule %q: %w", m.config.ReapSchedule, err)
	}

	m.wg.Add(1)
	go m.reapLoop(sched)
	logger.Slog().Info("sandbox reaper started", "schedule", m.config.ReapSchedule, "idle_ttl", m.config.IdleTTL)
	return nil
}

// Stop shuts down the reaper and releases all tracked sandboxes
func (m *Manager) Stop(ctx context.Context) {
	m.cancel()
	m.wg.Wait()

	for _, tracked := range m.List() {
		if err := m.Release(ctx, tracked.ID); err != nil {
			logger.Slog().Error("failed to release sandbox on shutdown", "id", tracked.ID, "error", err)
		}
	}
}

func (m *Manager) reapLoop(sched cron.Schedule) {
	defer m.wg.Done()

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.reapIdle()
		}
	}
}

// reapIdle removes sandboxes whose idle time exceeds the TTL
func (m *Manager) reapIdle() {
	if m.config.IdleTTL <= 0 {
		return
	}

	cutoff := time.Now().Add(-m.config.IdleTTL)

	var expired []*Tracked
	m.mu.RLock()
	for _, tracked := range m.sandboxes {
		if tracked.LastActive().Before(cutoff) {
			expired = append(expired, tracked)
		}
	}
	m.mu.RUnlock()

	for _, tracked := range expired {
		idle := time.Since(tracked.LastActive())
		logger.Slog().Info("reaping idle sandbox", "id", tracked.ID, "idle", idle.Round(time.Second))

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		err := m.Release(ctx, tracked.ID)
		cancel()

		if err != nil {
			logger.Slog().Error("failed to reap sandbox", "id", tracked.ID, "error", err)
			continue
		}
		metrics.RecordSandboxReap()
	}
}
