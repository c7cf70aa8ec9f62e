package bridge

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HandshakeState is a session's position in its monotonic handshake
// lifecycle: AwaitingRoots -> Locked -> Terminated, or AwaitingRoots ->
// Terminated.
type HandshakeState int

const (
	AwaitingRoots HandshakeState = iota
	Locked
	Terminated
)

func (s HandshakeState) String() string {
	switch s {
	case AwaitingRoots:
		return "awaiting_roots"
	case Locked:
		return "locked"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// TerminationReason records why a session left the Locked/AwaitingRoots
// states for good.
type TerminationReason int

const (
	NoTermination TerminationReason = iota
	ClientDisconnect
	SubprocessExit
	HandshakeTimeout
	InvalidRoots
	Shutdown
)

func (r TerminationReason) String() string {
	switch r {
	case ClientDisconnect:
		return "client_disconnect"
	case SubprocessExit:
		return "subprocess_exit"
	case HandshakeTimeout:
		return "handshake_timeout"
	case InvalidRoots:
		return "invalid_roots"
	case Shutdown:
		return "shutdown"
	default:
		return "none"
	}
}

// queuedCall is a tools/call request received before the session's sandbox
// scope is locked; it is replayed once the subprocess backing the session
// is ready, in arrival order.
type queuedCall struct {
	request []byte
	replyTo chan []byte
}

// Session is one HTTP client's bridge lifecycle: an isolated server
// subprocess, its (eventually immutable) sandbox scope, and the outbound
// queue feeding its SSE stream. handshakeState transitions monotonically;
// once Locked, sandboxScope never changes.
type Session struct {
	ID string

	mu                sync.Mutex
	handshakeState    HandshakeState
	sandboxScope      []string
	terminationReason TerminationReason
	lastActivity      time.Time
	pending           []queuedCall
	rootsRequestID    string

	subprocess *Subprocess
	outbound   chan []byte
	done       chan struct{}

	log zerolog.Logger
}

func newSession(id string, sp *Subprocess, log zerolog.Logger) *Session {
	return &Session{
		ID:             id,
		handshakeState: AwaitingRoots,
		lastActivity:   time.Now(),
		subprocess:     sp,
		outbound:       make(chan []byte, 32),
		done:           make(chan struct{}),
		log:            log.With().Str("session", id).Logger(),
	}
}

// Done returns a channel closed once the session terminates, letting
// goroutines that feed outbound abort a blocked send instead of racing
// with outbound's own lifetime.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the session's current handshake state.
func (s *Session) State() HandshakeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handshakeState
}

// SandboxScope returns the session's locked scope, or nil if not yet
// locked.
func (s *Session) SandboxScope() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sandboxScope...)
}

// touch records activity for idle-tracking purposes.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// enqueue holds a tools/call request until the session is Locked or
// Terminated.
func (s *Session) enqueue(req []byte, replyTo chan []byte) {
	s.mu.Lock()
	s.pending = append(s.pending, queuedCall{request: req, replyTo: replyTo})
	s.mu.Unlock()
}

func (s *Session) drainPending() []queuedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	return pending
}

// terminate transitions the session to Terminated exactly once, recording
// reason. Returns false if the session was already terminal.
func (s *Session) terminate(reason TerminationReason) bool {
	s.mu.Lock()
	if s.handshakeState == Terminated {
		s.mu.Unlock()
		return false
	}
	s.handshakeState = Terminated
	s.terminationReason = reason
	s.mu.Unlock()

	close(s.done)
	if s.subprocess != nil {
		s.subprocess.Close()
	}
	s.log.Info().Str("reason", reason.String()).Msg("session terminated")
	return true
}

// TerminationReason returns the reason the session terminated, or
// NoTermination if it's still live.
func (s *Session) TerminationReason() TerminationReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminationReason
}
