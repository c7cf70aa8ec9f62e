package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"
)

// Config controls how the session manager spawns and re-spawns per-session
// server subprocesses.
type Config struct {
	ServerCommand       string
	ServerArgs          []string
	SessionIsolation    bool
	DefaultSandboxScope string
	HandshakeTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 30 * time.Second
	}
	if c.DefaultSandboxScope == "" {
		c.DefaultSandboxScope = "."
	}
	return c
}

// SessionManager is a mutex-guarded store of per-client bridge sessions,
// keyed by session id.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	cfg Config
	log zerolog.Logger
}

// NewSessionManager creates a new empty manager.
func NewSessionManager(cfg Config, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "bridge").Logger(),
	}
}

// Get returns the session for id, or false if unknown.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove terminates and forgets a session.
func (m *SessionManager) Remove(id string, reason TerminationReason) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		s.terminate(reason)
	}
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown terminates every live session, used on bridge process shutdown.
// Each session's subprocess teardown (stdin close, kill, wait) runs
// concurrently since they're independent of one another and a slow exit
// from one subprocess shouldn't delay the rest.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range sessions {
		s := s
		g.Go(func() error {
			s.terminate(Shutdown)
			return nil
		})
	}
	_ = g.Wait()
}

// HandleInitialize validates and forwards an `initialize` request with no
// existing session header. On success it returns a new session id and the
// subprocess's raw initialize response; the caller is responsible for
// attaching the mcp-session-id header. On a missing protocolVersion it
// returns a JSON-RPC -32602 error response and a MissingProtocolVersion
// error with no session created.
func (m *SessionManager) HandleInitialize(ctx context.Context, initializeRaw []byte) (sessionID string, response []byte, err error) {
	if !gjson.GetBytes(initializeRaw, "params.protocolVersion").Exists() {
		id := gjson.GetBytes(initializeRaw, "id")
		errResp, _ := sjson.SetBytes(nil, "jsonrpc", "2.0")
		errResp, _ = sjson.SetBytes(errResp, "id", id.Value())
		errResp, _ = sjson.SetBytes(errResp, "error.code", -32602)
		errResp, _ = sjson.SetBytes(errResp, "error.message", "Invalid params: missing protocolVersion")
		return "", errResp, &Error{Kind: MissingProtocolVersion}
	}

	sessionID = uuid.NewString()
	sp, spawnErr := spawnSubprocess(ctx, m.cfg.ServerCommand, m.cfg.ServerArgs, []string{m.cfg.DefaultSandboxScope}, m.log)
	if spawnErr != nil {
		return "", nil, &Error{Kind: SpawnFailed, SessionID: sessionID, Err: spawnErr}
	}

	reqID := gjson.GetBytes(initializeRaw, "id").Raw
	line, callErr := sp.Call(ctx, reqID, initializeRaw)
	if callErr != nil {
		sp.Close()
		return "", nil, &Error{Kind: SpawnFailed, SessionID: sessionID, Err: callErr}
	}

	session := newSession(sessionID, sp, m.log)
	m.mu.Lock()
	m.sessions[sessionID] = session
	m.mu.Unlock()

	go m.watchSubprocess(session, sp)
	go m.watchHandshakeTimeout(session)

	// Immediately after a successful initialize, queue the bridge's own
	// roots/list request to the client on the session's outbound queue; it
	// is delivered once the client opens the SSE stream (GET /mcp). POST
	// responses do not carry it.
	rootsReq := m.BuildRootsListRequest(session)
	select {
	case session.outbound <- rootsReq:
	default:
	}

	return sessionID, line, nil
}

func (m *SessionManager) watchHandshakeTimeout(s *Session) {
	timer := time.NewTimer(m.cfg.HandshakeTimeout)
	defer timer.Stop()
	<-timer.C
	if s.State() == AwaitingRoots {
		m.Remove(s.ID, HandshakeTimeout)
	}
}

// watchSubprocess relays unsolicited lines (server-initiated requests and
// notifications) from sp onto the session's SSE outbound queue, and
// watches for sp's exit. Because a session's subprocess is replaced
// wholesale when its sandbox scope locks, a stale watcher whose
// subprocess was deliberately closed during that swap must not terminate
// the session out from under the new one — it checks that sp is still
// the session's live subprocess before treating exit as real.
func (m *SessionManager) watchSubprocess(s *Session, sp *Subprocess) {
	for line := range sp.Notifications {
		select {
		case s.outbound <- line:
		case <-s.Done():
			return
		default:
		}
	}

	s.mu.Lock()
	stillCurrent := s.subprocess == sp
	s.mu.Unlock()
	if stillCurrent && s.State() != Terminated {
		m.Remove(s.ID, SubprocessExit)
	}
}

// BuildRootsListRequest constructs the server-initiated roots/list request
// the bridge sends to the HTTP client immediately after a successful
// initialize handshake.
func (m *SessionManager) BuildRootsListRequest(s *Session) []byte {
	reqID := "roots-" + uuid.NewString()
	s.mu.Lock()
	s.rootsRequestID = reqID
	s.mu.Unlock()

	raw, _ := sjson.SetBytes(nil, "jsonrpc", "2.0")
	raw, _ = sjson.SetBytes(raw, "id", reqID)
	raw, _ = sjson.SetBytes(raw, "method", "roots/list")
	raw, _ = sjson.SetBytes(raw, "params", map[string]any{})
	return raw
}

// HandleRootsListResult processes the client's response to the bridge's
// roots/list request, locking the session's sandbox scope and re-spawning
// its subprocess with that scope fixed. Any tools/call requests queued
// while AwaitingRoots are replayed against the new subprocess in arrival
// order.
func (m *SessionManager) HandleRootsListResult(ctx context.Context, s *Session, resultRaw []byte) error {
	if s.State() != AwaitingRoots {
		return &Error{Kind: RootsAlreadyLocked, SessionID: s.ID}
	}

	roots := gjson.GetBytes(resultRaw, "result.roots")
	if !roots.Exists() || len(roots.Array()) == 0 {
		m.Remove(s.ID, InvalidRoots)
		return &Error{Kind: NoRootsProvided, SessionID: s.ID}
	}

	paths := make([]string, 0, len(roots.Array()))
	for _, r := range roots.Array() {
		uri := r.Get("uri").String()
		path, ok := ParseFileURI(uri)
		if !ok {
			m.Remove(s.ID, InvalidRoots)
			return &Error{Kind: InvalidRootURI, SessionID: s.ID, Detail: uri}
		}
		paths = append(paths, path)
	}

	newSp, err := spawnSubprocess(ctx, m.cfg.ServerCommand, m.cfg.ServerArgs, paths, m.log)
	if err != nil {
		m.Remove(s.ID, InvalidRoots)
		return &Error{Kind: SpawnFailed, SessionID: s.ID, Err: err}
	}

	s.mu.Lock()
	oldSp := s.subprocess
	s.subprocess = newSp
	s.sandboxScope = paths
	s.handshakeState = Locked
	s.mu.Unlock()
	oldSp.Close()

	go m.watchSubprocess(s, newSp)

	for _, call := range s.drainPending() {
		resp, err := m.Forward(ctx, s, call.request)
		if err != nil {
			resp, _ = sjson.SetBytes(nil, "error.message", err.Error())
		}
		if call.replyTo != nil {
			call.replyTo <- resp
		}
	}

	return nil
}

// Forward sends raw (which must carry the JSON-RPC id the caller expects
// back) to the session's current subprocess and returns its response.
func (m *SessionManager) Forward(ctx context.Context, s *Session, raw []byte) ([]byte, error) {
	s.mu.Lock()
	sp := s.subprocess
	s.mu.Unlock()

	id := gjson.GetBytes(raw, "id").Raw
	return sp.Call(ctx, id, raw)
}
