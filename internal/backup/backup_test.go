package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBackupAndRestore(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := t.TempDir()

	dbPath := filepath.Join(dataDir, "sessions.db")
	if err := os.WriteFile(dbPath, []byte("db contents"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	m, err := New(Config{DataDir: dataDir, BackupDir: backupDir, Retention: 5})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	snap, err := m.Backup()
	if err != nil {
		t.Fatalf("Backup() error: %v", err)
	}
	if snap.SizeBytes == 0 {
		t.Error("expected non-empty snapshot")
	}

	// Corrupt the data dir, then restore
	if err := os.WriteFile(dbPath, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("failed to overwrite file: %v", err)
	}
	if err := m.Restore(snap.Filename); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	data, err := os.ReadFile(dbPath)
	if err != nil {
		t.Fatalf("failed to read restored file: %v", err)
	}
	if string(data) != "db contents" {
		t.Errorf("restored contents = %q, want %q", data, "db contents")
	}
}

func TestBackupSkipsNestedBackupDir(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := filepath.Join(dataDir, "backups")

	if err := os.WriteFile(filepath.Join(dataDir, "sessions.db"), []byte("db"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	m, err := New(Config{DataDir: dataDir, BackupDir: backupDir, Retention: 5})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if _, err := m.Backup(); err != nil {
		t.Fatalf("first Backup() error: %v", err)
	}
	if _, err := m.Backup(); err != nil {
		t.Fatalf("second Backup() error: %v", err)
	}

	snapshots, err := m.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	for _, s := range snapshots {
		if s.SizeBytes > 1024*1024 {
			t.Errorf("snapshot %s unexpectedly large (%d bytes), archive recursion?", s.Filename, s.SizeBytes)
		}
	}
}

func TestRetention(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dataDir, "sessions.db"), []byte("db"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	m, err := New(Config{DataDir: dataDir, BackupDir: backupDir, Retention: 2})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Snapshot filenames have second granularity, so fake older ones directly
	for _, name := range []string{
		"bastion_20240101_000001.tar.gz",
		"bastion_20240101_000002.tar.gz",
		"bastion_20240101_000003.tar.gz",
	} {
		if err := os.WriteFile(filepath.Join(backupDir, name), []byte("old"), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}

	if _, err := m.Backup(); err != nil {
		t.Fatalf("Backup() error: %v", err)
	}

	snapshots, err := m.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	if len(snapshots) != 2 {
		t.Errorf("expected 2 snapshots after retention, got %d", len(snapshots))
	}
}

func TestListSnapshotsIgnoresForeignFiles(t *testing.T) {
	backupDir := t.TempDir()

	for _, name := range []string{
		"bastion_20240601_120000.tar.gz",
		"notes.txt",
		"other_20240601_120000.tar.gz",
	} {
		if err := os.WriteFile(filepath.Join(backupDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}

	m, err := New(Config{DataDir: t.TempDir(), BackupDir: backupDir})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	snapshots, err := m.ListSnapshots()
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}
	want := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if !snapshots[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", snapshots[0].Timestamp, want)
	}
}

func TestRestoreMissingSnapshot(t *testing.T) {
	m, err := New(Config{DataDir: t.TempDir(), BackupDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := m.Restore("bastion_19700101_000000.tar.gz"); err == nil {
		t.Error("expected error for missing snapshot")
	}
}
