package bridge

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// BridgeConfig is the full configuration for one HTTP-to-stdio bridge
// instance: where it listens, what server subprocess it proxies to, and
// whether each connecting client gets an isolated, scope-derived
// subprocess.
type BridgeConfig struct {
	BindAddr            string
	ServerCommand       string
	ServerArgs          []string
	EnableColoredOutput bool
	SessionIsolation    bool
	DefaultSandboxScope string
	HandshakeTimeout    time.Duration
}

// Bridge is a per-process HTTP-to-stdio proxy: one net/http server in
// front of a SessionManager that owns the per-client subprocesses.
type Bridge struct {
	cfg     BridgeConfig
	manager *SessionManager
	log     zerolog.Logger
	server  *http.Server
}

// NewBridge builds a Bridge and its request router, ready for Start.
func NewBridge(cfg BridgeConfig, log zerolog.Logger) *Bridge {
	if cfg.EnableColoredOutput {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	b := &Bridge{
		cfg: cfg,
		manager: NewSessionManager(Config{
			ServerCommand:       cfg.ServerCommand,
			ServerArgs:          cfg.ServerArgs,
			SessionIsolation:    cfg.SessionIsolation,
			DefaultSandboxScope: cfg.DefaultSandboxScope,
			HandshakeTimeout:    cfg.HandshakeTimeout,
		}, log),
		log: log.With().Str("component", "bridge").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", b.handleMCP)
	b.server = &http.Server{Addr: cfg.BindAddr, Handler: mux}
	return b
}

// Handler exposes the bridge's router directly, for use in tests without
// a listening socket.
func (b *Bridge) Handler() http.Handler { return b.server.Handler }

// Start runs the bridge's HTTP server until ctx is cancelled, at which
// point it shuts down the listener and terminates every live session.
func (b *Bridge) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.server.Shutdown(shutdownCtx)
		b.manager.Shutdown()
		return ctx.Err()
	}
}

func (b *Bridge) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		b.handlePost(w, r)
	case http.MethodGet:
		b.handleSSE(w, r)
	default:
		http.NotFound(w, r)
	}
}
