package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	iofs "io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bastionworks/bastion/internal/agent"
	agentopencode "github.com/bastionworks/bastion/internal/agent/opencode"
	"github.com/bastionworks/bastion/internal/backup"
	"github.com/bastionworks/bastion/internal/cleanup"
	"github.com/bastionworks/bastion/internal/config"
	"github.com/bastionworks/bastion/internal/deploy"
	"github.com/bastionworks/bastion/internal/logger"
	"github.com/bastionworks/bastion/internal/mcp"
	"github.com/bastionworks/bastion/internal/sandbox"
	"github.com/bastionworks/bastion/internal/sandbox/docker"
	"github.com/bastionworks/bastion/internal/session"
)

// Version is set at build time via -ldflags "-X main.Version=v1.0.0"
var Version = "dev"

func main() {
	// Check for subcommands before parsing flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			cmdInit()
			return
		case "--version", "-v":
			fmt.Printf("bastion %s\n", Version)
			return
		case "--help", "-h", "help":
			printUsage()
			return
		}
	}

	// Default: run server
	runServer()
}

func printUsage() {
	fmt.Printf(`Bastion %s - Sandboxed AI Agent Runtime

Usage: bastion [command] [options]

Commands:
  (default)    Start the API and MCP servers
  init         Initialize Bastion directory structure

Server Options:
  --dir <path>       Bastion home directory

Config Precedence (for server):
  1. --dir flag
  2. BASTION_HOME env var
  3. ./.bastion (if initialized in current directory)
  4. ~/.bastion (default)

Examples:
  bastion                            Start the server (auto-detect config)
  bastion --dir /path/to/bastion     Start with specific config directory
  bastion init                       Set up ~/.bastion
  bastion init --dir .               Set up in current directory
`, Version)
}

func runServer() {
	showVersion := flag.Bool("version", false, "Print version and exit")
	dirFlag := flag.String("dir", "", "Bastion home directory (default: ~/.bastion)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bastion %s\n", Version)
		os.Exit(0)
	}

	bastionDir := resolveBastionDir(*dirFlag)
	dataDir := filepath.Join(bastionDir, "data")
	configDir := filepath.Join(bastionDir, "config")

	// Check if initialized
	if _, err := os.Stat(filepath.Join(configDir, "bastion.jsonc")); errors.Is(err, iofs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Bastion not initialized. Run 'bastion init' first.")
		os.Exit(1)
	}

	// Load configuration
	configPath, err := config.FindConfigPath(configDir)
	if err != nil {
		log.Fatalf("Failed to find configuration: %v", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logDir := cfg.Data.LogDir
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(dataDir, logDir)
	}

	// Initialize loggers
	if err := logger.Init(logDir); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Close() }()
	if err := logger.InitSlog(logDir, false); err != nil {
		log.Fatalf("Failed to initialize structured logger: %v", err)
	}
	defer func() { _ = logger.CloseSlog() }()

	logger.Println("🏰 Bastion - Sandboxed AI Agent Runtime")
	logger.Println("")

	// Initialize Docker sandbox runtime
	sandboxRuntime, err := docker.NewRuntime()
	if err != nil {
		logger.Fatalf("Failed to initialize Docker runtime: %v", err)
	}
	defer func() { _ = sandboxRuntime.Close() }()

	ctx := context.Background()
	if err := sandboxRuntime.Ping(ctx); err != nil {
		logger.Fatalf("Failed to connect to Docker: %v", err)
	}
	logger.Printf("🐳 Connected to %s runtime", sandboxRuntime.Name())

	// Sandbox manager with idle reaping
	manager := sandbox.NewManager(sandboxRuntime, sandbox.ManagerConfig{
		Image:        cfg.Sandbox.Image,
		WorkingDir:   cfg.Sandbox.WorkingDir,
		Memory:       cfg.Sandbox.Memory,
		CPUs:         cfg.Sandbox.CPUs,
		NetworkMode:  cfg.Sandbox.NetworkMode,
		IdleTTL:      time.Duration(cfg.Sandbox.IdleTTLMinutes) * time.Minute,
		ReapSchedule: cfg.Sandbox.ReapSchedule,
	})
	if err := manager.StartReaper(); err != nil {
		logger.Fatalf("Failed to start sandbox reaper: %v", err)
	}
	logger.Printf("📦 Sandbox image: %s (idle TTL %dm, reap %q)",
		cfg.Sandbox.Image, cfg.Sandbox.IdleTTLMinutes, cfg.Sandbox.ReapSchedule)

	// Session store
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.Fatalf("Failed to create data directory: %v", err)
	}
	sessionStore, err := session.NewStore(dataDir)
	if err != nil {
		logger.Fatalf("Failed to initialize session store: %v", err)
	}
	defer func() { _ = sessionStore.Close() }()
	logger.Printf("💾 Session database: %s/sessions.db", dataDir)

	// Agent runtime (OpenCode)
	agentRuntime := agentopencode.NewRuntime(sandboxRuntime)
	if err := agentRuntime.Initialize(ctx, &agent.RuntimeConfig{
		DefaultModel: cfg.Agent.DefaultModel,
		ServerPort:   cfg.Agent.ServerPort,
	}); err != nil {
		logger.Fatalf("Failed to initialize agent runtime: %v", err)
	}
	logger.Printf("🤖 Agent runtime: %s (model %s)", agentRuntime.Name(), cfg.Agent.DefaultModel)

	// Background cleanup of temp files and old sessions
	cleanupCfg := cleanup.DefaultConfig(dataDir, sessionStore)
	cleanupCfg.SessionRetention = time.Duration(cfg.Data.SessionRetentionDays) * 24 * time.Hour
	cleaner := cleanup.New(cleanupCfg)
	cleaner.Start()

	// Periodic data directory snapshots (disabled unless configured)
	backupDir := cfg.Data.BackupDir
	if !filepath.IsAbs(backupDir) {
		backupDir = filepath.Join(dataDir, backupDir)
	}
	backups, err := backup.New(backup.Config{
		DataDir:   dataDir,
		BackupDir: backupDir,
		Retention: cfg.Data.BackupRetention,
		Interval:  time.Duration(cfg.Data.BackupIntervalHours) * time.Hour,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize backups: %v", err)
	}
	backups.Start()

	// API server
	apiServer := deploy.NewServer(deploy.Config{
		Addr:              cfg.Server.Address,
		RequestsPerSecond: cfg.Server.RequestsPerSecond,
		Burst:             cfg.Server.Burst,
	}, agentRuntime, manager, sessionStore)

	// MCP server
	mcpServer := mcp.NewServer(sandboxRuntime, manager, sessionStore, agentRuntime, &mcp.ServerConfig{
		WorkingDir: cfg.Sandbox.WorkingDir,
	})

	logger.Printf("🚀 API server:  http://localhost%s/v1", cfg.Server.Address)
	logger.Printf("📡 MCP server:  http://localhost%s/mcp", cfg.Server.MCPAddress)
	logger.Println("")

	// Setup graceful shutdown
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 2)
	go func() {
		serverErr <- apiServer.ListenAndServe()
	}()
	go func() {
		serverErr <- mcpServer.Serve(cfg.Server.MCPAddress)
	}()

	select {
	case err := <-serverErr:
		logger.Fatalf("Server error: %v", err)
	case sig := <-shutdownChan:
		logger.Printf("⚠️  Received signal %v, initiating graceful shutdown...", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		logger.Println("   Stopping HTTP servers...")
		_ = apiServer.Shutdown(shutdownCtx)
		_ = mcpServer.Shutdown(shutdownCtx)

		logger.Println("   Stopping background workers...")
		cleaner.Stop()
		backups.Stop()

		logger.Println("   Stopping agent runtime...")
		_ = agentRuntime.Close()

		logger.Println("   Releasing sandboxes...")
		manager.Stop(shutdownCtx)

		logger.Println("   Closing session database...")
		_ = sessionStore.Close()

		logger.Println("   Closing Docker connection...")
		_ = sandboxRuntime.Close()

		logger.Println("✅ Shutdown complete")
		_ = logger.Close()
		_ = logger.CloseSlog()
		os.Exit(0) //nolint:gocritic // intentional exit after manual cleanup
	}
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dirFlag := fs.String("dir", "", "Directory to initialize (default: ~/.bastion)")
	_ = fs.Parse(os.Args[2:])

	var bastionDir string
	if *dirFlag != "" {
		absDir, err := filepath.Abs(*dirFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid directory: %v\n", err)
			os.Exit(1)
		}
		bastionDir = absDir
		if filepath.Base(bastionDir) != ".bastion" {
			bastionDir = filepath.Join(bastionDir, ".bastion")
		}
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: could not determine home directory: %v\n", err)
			os.Exit(1)
		}
		bastionDir = filepath.Join(homeDir, ".bastion")
	}

	configDir := filepath.Join(bastionDir, "config")
	dataDir := filepath.Join(bastionDir, "data")

	// Check if already initialized (look for config file, not just directory)
	configFile := filepath.Join(configDir, "bastion.jsonc")
	if _, err := os.Stat(configFile); err == nil {
		fmt.Printf("⚠️  %s is already initialized.\n", bastionDir)
		fmt.Print("Overwrite? [y/N]: ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	for _, dir := range []string{configDir, dataDir, filepath.Join(dataDir, "logs")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to create %s: %v\n", dir, err)
			os.Exit(1)
		}
	}

	if err := os.WriteFile(configFile, []byte(defaultConfigJSONC), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to write config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✅ Initialized %s\n", bastionDir)
	fmt.Printf("   Edit %s and set agent.default_model, then run 'bastion'.\n", configFile)
}

// resolveBastionDir determines the bastion home directory with precedence:
// flag, BASTION_HOME env var, ./.bastion, ~/.bastion
func resolveBastionDir(flagDir string) string {
	if flagDir != "" {
		if abs, err := filepath.Abs(flagDir); err == nil {
			return abs
		}
		return flagDir
	}

	if envDir := os.Getenv("BASTION_HOME"); envDir != "" {
		return envDir
	}

	if _, err := os.Stat(filepath.Join(".bastion", "config", "bastion.jsonc")); err == nil {
		if abs, err := filepath.Abs(".bastion"); err == nil {
			return abs
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".bastion"
	}
	return filepath.Join(homeDir, ".bastion")
}

const defaultConfigJSONC = `{
  // Bastion configuration
  "server": {
    "address": ":8080",
    "mcp_address": ":8081"
  },
  "sandbox": {
    // Image used for new sandboxes; must have the opencode CLI installed
    "image": "ghcr.io/bastionworks/bastion-sandbox:latest",
    "memory": "4G",
    "cpus": 4,
    "idle_ttl_minutes": 60,
    "reap_schedule": "*/10 * * * *"
  },
  "agent": {
    // Required: model in providerID/modelID format
    "default_model": ""
  },
  "data": {
    "dir": "data",
    // Snapshots of the data directory; 0 disables
    "backup_interval_hours": 0,
    "backup_retention": 5,
    "session_retention_days": 7
  }
}
`
