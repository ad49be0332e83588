package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "config-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "bastion.jsonc")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `{
		// Server settings
		"server": {
			"address": ":9090",
			"mcp_address": ":9091",
			"requests_per_second": 50,
			"burst": 100
		},
		"sandbox": {
			"image": "custom:latest",
			"memory": "8G",
			"cpus": 8,
			"idle_ttl_minutes": 30,
			"reap_schedule": "*/5 * * * *"
		},
		"agent": {
			"default_model": "anthropic/claude-sonnet-4",
			"server_port": 5000
		},
		"data": {
			"dir": "/var/lib/bastion"
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Address != ":9090" {
		t.Errorf("expected address :9090, got %q", cfg.Server.Address)
	}
	if cfg.Server.RequestsPerSecond != 50 {
		t.Errorf("expected 50 rps, got %v", cfg.Server.RequestsPerSecond)
	}
	if cfg.Sandbox.Image != "custom:latest" {
		t.Errorf("expected custom image, got %q", cfg.Sandbox.Image)
	}
	if cfg.Sandbox.CPUs != 8 {
		t.Errorf("expected 8 cpus, got %d", cfg.Sandbox.CPUs)
	}
	if cfg.Agent.DefaultModel != "anthropic/claude-sonnet-4" {
		t.Errorf("expected default model, got %q", cfg.Agent.DefaultModel)
	}
	if cfg.Agent.ServerPort != 5000 {
		t.Errorf("expected port 5000, got %d", cfg.Agent.ServerPort)
	}
	if cfg.Data.Dir != "/var/lib/bastion" {
		t.Errorf("expected data dir, got %q", cfg.Data.Dir)
	}
	// Unset fields still default
	if cfg.Sandbox.WorkingDir != "/workspace" {
		t.Errorf("expected default working dir, got %q", cfg.Sandbox.WorkingDir)
	}
	if cfg.Data.LogDir != "logs" {
		t.Errorf("expected default log dir, got %q", cfg.Data.LogDir)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"agent": {"default_model": "anthropic/claude-sonnet-4"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address, got %q", cfg.Server.Address)
	}
	if cfg.Server.MCPAddress != ":8081" {
		t.Errorf("expected default mcp address, got %q", cfg.Server.MCPAddress)
	}
	if cfg.Server.RequestsPerSecond != 10 || cfg.Server.Burst != 20 {
		t.Errorf("expected default rate limits, got %v/%d", cfg.Server.RequestsPerSecond, cfg.Server.Burst)
	}
	if cfg.Sandbox.Memory != "4G" || cfg.Sandbox.CPUs != 4 {
		t.Errorf("expected default resources, got %s/%d", cfg.Sandbox.Memory, cfg.Sandbox.CPUs)
	}
	if cfg.Sandbox.IdleTTLMinutes != 60 {
		t.Errorf("expected default idle TTL, got %d", cfg.Sandbox.IdleTTLMinutes)
	}
	if cfg.Sandbox.ReapSchedule != "*/10 * * * *" {
		t.Errorf("expected default reap schedule, got %q", cfg.Sandbox.ReapSchedule)
	}
	if cfg.Agent.ServerPort != 4096 {
		t.Errorf("expected default server port, got %d", cfg.Agent.ServerPort)
	}
	if cfg.Data.BackupDir != "backups" || cfg.Data.BackupRetention != 5 {
		t.Errorf("expected default backup settings, got %q/%d", cfg.Data.BackupDir, cfg.Data.BackupRetention)
	}
	if cfg.Data.BackupIntervalHours != 0 {
		t.Errorf("expected backups disabled by default, got %d", cfg.Data.BackupIntervalHours)
	}
	if cfg.Data.SessionRetentionDays != 7 {
		t.Errorf("expected default session retention, got %d", cfg.Data.SessionRetentionDays)
	}
}

func TestLoadStripsComments(t *testing.T) {
	path := writeConfig(t, `{
		// line comment
		"server": {"address": ":7070"}, /* block
		comment */
		"agent": {"default_model": "openai/gpt-5"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config with comments: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Errorf("expected address :7070, got %q", cfg.Server.Address)
	}
}

func TestLoadCommentMarkersInsideStrings(t *testing.T) {
	path := writeConfig(t, `{"sandbox": {"image": "registry.example.com/img:latest"}, "agent": {"default_model": "a//b"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load: %v", err)
	}
	if cfg.Agent.DefaultModel != "a//b" {
		t.Errorf("comment stripping corrupted string value: %q", cfg.Agent.DefaultModel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/bastion.jsonc"); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := writeConfig(t, `{not valid json`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFindConfigPathExplicitDir(t *testing.T) {
	path := writeConfig(t, `{}`)
	dir := filepath.Dir(path)

	found, err := FindConfigPath(dir)
	if err != nil {
		t.Fatalf("failed to find config: %v", err)
	}
	if filepath.Base(found) != "bastion.jsonc" {
		t.Errorf("expected bastion.jsonc, got %q", found)
	}

	if _, err := FindConfigPath("/nonexistent"); err == nil {
		t.Error("expected error for missing config dir")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error without default model")
	}

	cfg.Agent.DefaultModel = "anthropic/claude-sonnet-4"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}
