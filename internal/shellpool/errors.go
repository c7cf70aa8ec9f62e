package shellpool

import "errors"

// ErrKind classifies a shell-pool failure.
type ErrKind int

const (
	// Timeout means a spawn or command exceeded its deadline.
	Timeout ErrKind = iota
	// ChannelClosed means the worker process died mid-command.
	ChannelClosed
	// SpawnFailed means a new worker process could not be started.
	SpawnFailed
	// ProtocolError means a worker response was malformed.
	ProtocolError
)

func (k ErrKind) String() string {
	switch k {
	case Timeout:
		return "Timeout"
	case ChannelClosed:
		return "ChannelClosed"
	case SpawnFailed:
		return "SpawnFailed"
	case ProtocolError:
		return "ProtocolError"
	default:
		return "Unknown"
	}
}

// Recoverable reports whether the caller may retry against a freshly
// spawned worker. Timeout and ChannelClosed are; SpawnFailed and
// ProtocolError are not (the latter indicates a bug, not transient state).
func (k ErrKind) Recoverable() bool {
	return k == Timeout || k == ChannelClosed
}

// Error is the structured error type returned by worker execution.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrPoolExhausted is the fallback sentinel returned by Acquire when
// max_total_shells live workers are already spawned. The caller must fall
// back to a direct process spawn rather than block.
var ErrPoolExhausted = errors.New("shellpool: pool exhausted, caller must fall back to direct spawn")
