package cleanup

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bastionworks/bastion/internal/session"
)

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "cleanup-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	store, err := session.NewStore(dir)
	if err != nil {
		t.Fatalf("failed to create session store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCleanupTmpFiles(t *testing.T) {
	dir := t.TempDir()

	oldFile := filepath.Join(dir, "stale.tmp")
	if err := os.WriteFile(oldFile, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, past, past); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}

	freshFile := filepath.Join(dir, "fresh.tmp")
	if err := os.WriteFile(freshFile, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	keeper := filepath.Join(dir, "sessions.db")
	if err := os.WriteFile(keeper, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if err := os.Chtimes(keeper, past, past); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}

	c := New(Config{DataDir: dir, SessionRetention: time.Hour})
	c.cleanupTmpFiles()

	if _, err := os.Stat(oldFile); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected stale .tmp file to be removed")
	}
	if _, err := os.Stat(freshFile); err != nil {
		t.Error("expected fresh .tmp file to survive")
	}
	if _, err := os.Stat(keeper); err != nil {
		t.Error("expected non-tmp file to survive")
	}
}

func TestCleanupOldSessions(t *testing.T) {
	store := newTestStore(t)

	done := &session.Session{SandboxID: "sbx_a", Title: "finished work"}
	if err := store.Create(done); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := store.SetStatus(done.SessionID, session.StatusCompleted); err != nil {
		t.Fatalf("failed to set status: %v", err)
	}

	active := &session.Session{SandboxID: "sbx_a", Title: "ongoing work"}
	if err := store.Create(active); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}

	// Negative retention puts the cutoff in the future, so every
	// finished session is past retention.
	c := New(Config{DataDir: t.TempDir(), Sessions: store, SessionRetention: -time.Second})
	c.cleanupOldSessions()

	if _, err := store.Get(done.SessionID); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("expected completed session to be deleted, got %v", err)
	}
	if _, err := store.Get(active.SessionID); err != nil {
		t.Errorf("expected active session to survive, got %v", err)
	}
}

func TestCleanupRetainsRecentSessions(t *testing.T) {
	store := newTestStore(t)

	done := &session.Session{SandboxID: "sbx_a", Title: "just finished"}
	if err := store.Create(done); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	if err := store.SetStatus(done.SessionID, session.StatusCompleted); err != nil {
		t.Fatalf("failed to set status: %v", err)
	}

	c := New(Config{DataDir: t.TempDir(), Sessions: store, SessionRetention: time.Hour})
	c.cleanupOldSessions()

	if _, err := store.Get(done.SessionID); err != nil {
		t.Errorf("expected recently finished session to survive, got %v", err)
	}
}

func TestDiskUsage(t *testing.T) {
	c := New(Config{DataDir: t.TempDir()})

	used, total, percent, err := c.DiskUsage()
	if err != nil {
		t.Fatalf("DiskUsage() error: %v", err)
	}
	if total == 0 {
		t.Error("expected non-zero total bytes")
	}
	if used > total {
		t.Errorf("used %d exceeds total %d", used, total)
	}
	if percent < 0 || percent > 100 {
		t.Errorf("percent out of range: %f", percent)
	}
}
