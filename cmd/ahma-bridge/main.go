// Command ahma-bridge runs the HTTP-to-stdio bridge: it listens for MCP
// clients over HTTP+SSE and spawns one ahma-server subprocess per
// connected session, scoped to that client's MCP roots.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ahma-mcp/ahma-mcp/internal/bridge"
	"github.com/ahma-mcp/ahma-mcp/internal/logging"
)

func main() {
	var (
		bindAddr         = flag.String("bind", "127.0.0.1:8765", "address to listen on")
		serverCommand    = flag.String("server-command", "ahma-server", "upstream stdio server binary")
		serverArgs       = flag.String("server-args", "", "comma-separated extra args passed to the upstream server")
		sessionIsolation = flag.Bool("session-isolation", true, "spawn an isolated subprocess per client session")
		defaultScope     = flag.String("default-sandbox-scope", ".", "provisional sandbox scope used before a session's roots/list handshake locks one")
		handshakeTimeout = flag.Duration("handshake-timeout", 30*time.Second, "how long a session may sit awaiting its roots/list response before being terminated")
		colored          = flag.Bool("color", false, "use a human-readable console log writer instead of JSON lines")
	)
	flag.Parse()

	log := logging.New(*colored)

	var args []string
	if *serverArgs != "" {
		args = strings.Split(*serverArgs, ",")
	}

	b := bridge.NewBridge(bridge.BridgeConfig{
		BindAddr:            *bindAddr,
		ServerCommand:       *serverCommand,
		ServerArgs:          args,
		EnableColoredOutput: *colored,
		SessionIsolation:    *sessionIsolation,
		DefaultSandboxScope: *defaultScope,
		HandshakeTimeout:    *handshakeTimeout,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("bind", *bindAddr).Msg("ahma-bridge listening")
	if err := b.Start(ctx); err != nil && err != context.Canceled {
		fmt.Fprintln(os.Stderr, "ahma-bridge:", err)
		os.Exit(1)
	}
}
