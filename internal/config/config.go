// Package config loads the unified bastion.jsonc configuration file.
//
// config.go - configuration schema, discovery, and defaults
//
// This file contains:
// - Config and its sections (server, sandbox, agent, data)
// - FindConfigPath for config file discovery
// - Load with JSONC comment stripping and default application

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the single configuration file format for bastion.jsonc
type Config struct {
	Server  ServerSection  `json:"server"`
	Sandbox SandboxSection `json:"sandbox"`
	Agent   AgentSection   `json:"agent"`
	Data    DataSection    `json:"data"`
}

// ServerSection contains HTTP server configuration
type ServerSection struct {
	Address           string  `json:"address"`
	MCPAddress        string  `json:"mcp_address"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	Burst             int     `json:"burst"`
}

// SandboxSection contains sandbox runtime configuration
type SandboxSection struct {
	Image          string `json:"image"`
	WorkingDir     string `json:"working_dir"`
	Memory         string `json:"memory"` // e.g. "4G", "2048M"
	CPUs           int    `json:"cpus"`
	NetworkMode    string `json:"network_mode"`
	IdleTTLMinutes int    `json:"idle_ttl_minutes"`
	ReapSchedule   string `json:"reap_schedule"` // 5-field cron expression
}

// AgentSection contains agent backend configuration
type AgentSection struct {
	DefaultModel string `json:"default_model"` // "providerID/modelID" format
	ServerPort   int    `json:"server_port"`
}

// DataSection contains storage paths
type DataSection struct {
	Dir                  string `json:"dir"`
	LogDir               string `json:"log_dir"`
	BackupDir            string `json:"backup_dir"`
	BackupRetention      int    `json:"backup_retention"`
	BackupIntervalHours  int    `json:"backup_interval_hours"`
	SessionRetentionDays int    `json:"session_retention_days"`
}

// FindConfigPath returns the path to bastion.jsonc using precedence:
// 1. configDir + /bastion.jsonc (if configDir specified)
// 2. ./config/bastion.jsonc (project-local)
// 3. ~/.bastion/config/bastion.jsonc (user global)
func FindConfigPath(configDir string) (string, error) {
	if configDir != "" {
		path := filepath.Join(configDir, "bastion.jsonc")
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("bastion.jsonc not found in %s", configDir)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return path, nil
		}
		return abs, nil
	}

	candidates := []string{
		filepath.Join("config", "bastion.jsonc"),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".bastion", "config", "bastion.jsonc"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			abs, err := filepath.Abs(path)
			if err != nil {
				return path, nil
			}
			return abs, nil
		}
	}

	return "", fmt.Errorf("bastion.jsonc not found; tried: %v", candidates)
}

// Load reads configuration from a bastion.jsonc file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configPath, err)
	}

	jsonData := StripJSONComments(data)

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configPath, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.MCPAddress == "" {
		cfg.Server.MCPAddress = ":8081"
	}
	if cfg.Server.RequestsPerSecond == 0 {
		cfg.Server.RequestsPerSecond = 10
	}
	if cfg.Server.Burst == 0 {
		cfg.Server.Burst = 20
	}

	if cfg.Sandbox.Image == "" {
		if isDevMode() {
			cfg.Sandbox.Image = "bastion-sandbox:latest"
		} else {
			cfg.Sandbox.Image = "ghcr.io/bastionworks/bastion-sandbox:latest"
		}
	}
	if cfg.Sandbox.WorkingDir == "" {
		cfg.Sandbox.WorkingDir = "/workspace"
	}
	if cfg.Sandbox.Memory == "" {
		cfg.Sandbox.Memory = "4G"
	}
	if cfg.Sandbox.CPUs == 0 {
		cfg.Sandbox.CPUs = 4
	}
	if cfg.Sandbox.IdleTTLMinutes == 0 {
		cfg.Sandbox.IdleTTLMinutes = 60
	}
	if cfg.Sandbox.ReapSchedule == "" {
		cfg.Sandbox.ReapSchedule = "*/10 * * * *"
	}

	if cfg.Agent.ServerPort == 0 {
		cfg.Agent.ServerPort = 4096
	}

	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Data.LogDir == "" {
		cfg.Data.LogDir = "logs"
	}
	if cfg.Data.BackupDir == "" {
		cfg.Data.BackupDir = "backups"
	}
	if cfg.Data.BackupRetention == 0 {
		cfg.Data.BackupRetention = 5
	}
	if cfg.Data.SessionRetentionDays == 0 {
		cfg.Data.SessionRetentionDays = 7
	}
}

func isDevMode() bool {
	return os.Getenv("BASTION_DEV") == "1"
}

// Validate checks that required configuration is present
func (c *Config) Validate() error {
	if c.Agent.DefaultModel == "" {
		return fmt.Errorf("agent.default_model is required")
	}
	return nil
}
