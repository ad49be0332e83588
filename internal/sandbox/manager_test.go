package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeRuntime is an in-memory Runtime for manager tests
type fakeRuntime struct {
	mu       sync.Mutex
	nextID   int
	created  map[string]CreateConfig
	started  map[string]bool
	removed  map[string]bool
	pulled   []string
	hasImage bool

	createErr error
	startErr  error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		created:  make(map[string]CreateConfig),
		started:  make(map[string]bool),
		removed:  make(map[string]bool),
		hasImage: true,
	}
}

func (f *fakeRuntime) Create(ctx context.Context, config CreateConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.created[id] = config
	return id, nil
}

func (f *fakeRuntime) Start(ctx context.Context, sandboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started[sandboxID] = true
	return nil
}

func (f *fakeRuntime) Stop(ctx context.Context, sandboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started[sandboxID] = false
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, sandboxID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed[sandboxID] = true
	return nil
}

func (f *fakeRuntime) Exec(ctx context.Context, sandboxID string, config ExecConfig) (*ExecResult, error) {
	return &ExecResult{ExitCode: 0}, nil
}

func (f *fakeRuntime) ExecInteractive(ctx context.Context, sandboxID string, config ExecConfig) (*InteractiveExec, error) {
	return nil, errors.New("not supported")
}

func (f *fakeRuntime) Inspect(ctx context.Context, sandboxID string) (*Info, error) {
	return &Info{ID: sandboxID, Status: StatusRunning}, nil
}

func (f *fakeRuntime) Logs(ctx context.Context, sandboxID string, opts LogsOptions) (string, error) {
	return "", nil
}

func (f *fakeRuntime) Status(ctx context.Context, sandboxID string) (Status, error) {
	return StatusRunning, nil
}

func (f *fakeRuntime) ImageExists(ctx context.Context, imageName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasImage, nil
}

func (f *fakeRuntime) Pull(ctx context.Context, imageName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, imageName)
	f.hasImage = true
	return nil
}

func (f *fakeRuntime) Ping(ctx context.Context) error { return nil }
func (f *fakeRuntime) Close() error                   { return nil }
func (f *fakeRuntime) Name() string                   { return "fake" }
func (f *fakeRuntime) IsAvailable() bool              { return true }

func (f *fakeRuntime) removedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.removed {
		if r {
			n++
		}
	}
	return n
}

func testConfig() ManagerConfig {
	return ManagerConfig{
		Image:        "bastion/sandbox:latest",
		WorkingDir:   "/workspace",
		IdleTTL:      time.Hour,
		ReapSchedule: "*/5 * * * *",
	}
}

func TestManagerCreate(t *testing.T) {
	rt := newFakeRuntime()
	mgr := NewManager(rt, testConfig())

	tracked, err := mgr.Create(context.Background(), "test-sbx", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if tracked.ID == "" {
		t.Error("Create() returned empty ID")
	}
	if tracked.SandboxID == "" {
		t.Error("Create() returned empty SandboxID")
	}

	cfg, ok := rt.created[tracked.SandboxID]
	if !ok {
		t.Fatal("container was not created in runtime")
	}
	if cfg.Image != "bastion/sandbox:latest" {
		t.Errorf("image = %q, want bastion/sandbox:latest", cfg.Image)
	}
	if cfg.Labels["bastion.sandbox.id"] != tracked.ID {
		t.Errorf("sandbox label = %q, want %q", cfg.Labels["bastion.sandbox.id"], tracked.ID)
	}
	if !rt.started[tracked.SandboxID] {
		t.Error("container was not started")
	}
}

func TestManagerCreatePullsMissingImage(t *testing.T) {
	rt := newFakeRuntime()
	rt.hasImage = false
	mgr := NewManager(rt, testConfig())

	if _, err := mgr.Create(context.Background(), "", nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(rt.pulled) != 1 || rt.pulled[0] != "bastion/sandbox:latest" {
		t.Errorf("pulled = %v, want one pull of bastion/sandbox:latest", rt.pulled)
	}
}

func TestManagerCreateStartFailureCleansUp(t *testing.T) {
	rt := newFakeRuntime()
	rt.startErr = errors.New("start failed")
	mgr := NewManager(rt, testConfig())

	if _, err := mgr.Create(context.Background(), "", nil); err == nil {
		t.Fatal("Create() should fail when start fails")
	}
	if rt.removedCount() != 1 {
		t.Errorf("removed count = %d, want 1 (cleanup of half-created container)", rt.removedCount())
	}
	if len(mgr.List()) != 0 {
		t.Error("failed sandbox should not be tracked")
	}
}

func TestManagerAcquireTouchesHeartbeat(t *testing.T) {
	rt := newFakeRuntime()
	mgr := NewManager(rt, testConfig())

	tracked, err := mgr.Create(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	before := tracked.LastActive()
	time.Sleep(5 * time.Millisecond)

	acquired, err := mgr.Acquire(tracked.ID)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if acquired != tracked {
		t.Error("Acquire() should return the same tracked instance")
	}
	if !acquired.LastActive().After(before) {
		t.Error("Acquire() should advance last-active time")
	}

	if _, err := mgr.Acquire("sbx_missing"); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("Acquire(missing) error = %v, want ErrSandboxNotFound", err)
	}
}

func TestManagerRelease(t *testing.T) {
	rt := newFakeRuntime()
	mgr := NewManager(rt, testConfig())

	tracked, err := mgr.Create(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := mgr.Release(context.Background(), tracked.ID); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if !rt.removed[tracked.SandboxID] {
		t.Error("Release() should remove the container")
	}
	if len(mgr.List()) != 0 {
		t.Error("released sandbox should not be tracked")
	}

	if err := mgr.Release(context.Background(), tracked.ID); !errors.Is(err, ErrSandboxNotFound) {
		t.Errorf("second Release() error = %v, want ErrSandboxNotFound", err)
	}
}

func TestManagerReapIdle(t *testing.T) {
	rt := newFakeRuntime()
	cfg := testConfig()
	cfg.IdleTTL = 50 * time.Millisecond
	mgr := NewManager(rt, cfg)

	stale, err := mgr.Create(context.Background(), "stale", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	fresh, err := mgr.Create(context.Background(), "fresh", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	fresh.Touch()

	mgr.reapIdle()

	if _, err := mgr.Get(stale.ID); !errors.Is(err, ErrSandboxNotFound) {
		t.Error("stale sandbox should have been reaped")
	}
	if _, err := mgr.Get(fresh.ID); err != nil {
		t.Errorf("fresh sandbox should survive the reap: %v", err)
	}
}

func TestManagerReapDisabledWithZeroTTL(t *testing.T) {
	rt := newFakeRuntime()
	cfg := testConfig()
	cfg.IdleTTL = 0
	mgr := NewManager(rt, cfg)

	tracked, err := mgr.Create(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	mgr.reapIdle()

	if _, err := mgr.Get(tracked.ID); err != nil {
		t.Errorf("sandbox should survive when TTL is disabled: %v", err)
	}
}

func TestManagerStartReaperInvalidSchedule(t *testing.T) {
	rt := newFakeRuntime()
	cfg := testConfig()
	cfg.ReapSchedule = "not a schedule"
	mgr := NewManager(rt, cfg)

	if err := mgr.StartReaper(); err == nil {
		t.Error("StartReaper() with invalid schedule should return error")
	}
}
