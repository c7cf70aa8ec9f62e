// Command ahma-server is the stdio MCP tool server: it loads a tools
// directory, activates the sandbox, starts the shell pool and operation
// monitor, and serves MCP requests over stdin/stdout until the client
// disconnects.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ahma-mcp/ahma-mcp/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp/internal/config"
	"github.com/ahma-mcp/ahma-mcp/internal/logging"
	"github.com/ahma-mcp/ahma-mcp/internal/mcpservice"
	"github.com/ahma-mcp/ahma-mcp/internal/operation"
	"github.com/ahma-mcp/ahma-mcp/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp/internal/shellpool"
)

func main() {
	var (
		toolsDir     = flag.String("tools-dir", "./tools", "directory of tool JSON config files")
		configPath   = flag.String("config", "", "path to a config.toml overriding defaults (optional)")
		sandboxRoots = flag.String("sandbox-roots", "", "comma-separated sandbox scope; spawned by the bridge with the client's locked roots")
		noSandbox    = flag.Bool("no-sandbox", false, "permit running without kernel sandbox enforcement")
		highSecurity = flag.Bool("high-security", false, "additionally reject writes under well-known temp directories")
		listTools    = flag.Bool("list-tools", false, "print the loaded tool names and exit 0")
		colored      = flag.Bool("color", false, "use a human-readable console log writer instead of JSON lines")
	)
	flag.Parse()

	log := logging.New(*colored)

	cfg := &config.ServerConfig{ToolsDir: *toolsDir, NoSandbox: *noSandbox, HighSecurity: *highSecurity}
	if *configPath != "" {
		loaded, err := config.LoadServerConfig(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ahma-server:", err)
			os.Exit(1)
		}
		cfg = loaded
		if *noSandbox {
			cfg.NoSandbox = true
		}
		if *highSecurity {
			cfg.HighSecurity = true
		}
		if *toolsDir != "./tools" {
			cfg.ToolsDir = *toolsDir
		}
	}

	if os.Getenv("AHMA_NO_SANDBOX") == "1" {
		cfg.NoSandbox = true
	}

	tools, err := config.LoadToolDirectory(cfg.ToolsDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ahma-server:", err)
		os.Exit(1)
	}

	if *listTools {
		for name := range tools {
			fmt.Println(name)
		}
		os.Exit(0)
	}

	scopes := resolveScopes(*sandboxRoots)
	sb, err := sandbox.New(scopes, sandbox.Options{NoTempFiles: cfg.HighSecurity}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ahma-server: sandbox:", err)
		os.Exit(1)
	}
	if err := sb.Activate(cfg.NoSandbox); err != nil {
		fmt.Fprintln(os.Stderr, "ahma-server: sandbox activation:", err)
		os.Exit(1)
	}

	pool, err := shellpool.NewPool(shellpool.Config{
		MaxTotalShells:      cfg.Pool.MaxTotalShells,
		ShellSpawnTimeout:   time.Duration(cfg.Pool.ShellSpawnTimeoutSeconds) * time.Second,
		ShellIdleTimeout:    time.Duration(cfg.Pool.ShellIdleTimeoutSeconds) * time.Second,
		PoolCleanupInterval: time.Duration(cfg.Pool.PoolCleanupIntervalSeconds) * time.Second,
		HealthCheckInterval: time.Duration(cfg.Pool.HealthCheckIntervalSeconds) * time.Second,
		HealthCheckTimeout:  time.Duration(cfg.Pool.HealthCheckTimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ahma-server: shell pool:", err)
		os.Exit(1)
	}
	defer pool.Shutdown()

	monitor := operation.NewMonitor(cfg.Monitor.HistoryCapacity, log)
	dispatcher := adapter.NewDispatcher(sb, pool, monitor, time.Duration(cfg.Monitor.DefaultTimeoutSeconds)*time.Second, log)

	workingDir := "."
	if len(scopes) > 0 {
		workingDir = scopes[0]
	}
	service := mcpservice.NewService(tools, dispatcher, monitor, workingDir, log)

	ctx := context.Background()
	if err := service.Server().Run(ctx, &gomcp.StdioTransport{}); err != nil {
		fmt.Fprintln(os.Stderr, "ahma-server:", err)
		os.Exit(1)
	}
}

// resolveScopes splits a comma-separated --sandbox-roots flag, falling back
// to the current working directory when unset — the provisional,
// not-yet-scoped subprocess the bridge spawns before the roots/list
// handshake locks a scope.
func resolveScopes(raw string) []string {
	if raw == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return []string{"."}
		}
		return []string{cwd}
	}
	parts := strings.Split(raw, ",")
	scopes := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			scopes = append(scopes, p)
		}
	}
	return scopes
}
