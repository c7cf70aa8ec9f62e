package sandbox

import "github.com/rs/zerolog"

// Scope is a non-empty ordered list of canonical absolute directory paths
// under which subprocess filesystem access is permitted.
type Scope []string

// Options configures a Sandbox at construction time.
type Options struct {
	// NoTempFiles additionally rejects paths under well-known temp
	// directories regardless of configured scope (high-security mode).
	NoTempFiles bool
}

// Sandbox is an explicit, threaded value (never process-wide global state)
// holding a validated scope and the platform enforcer activated for it. The
// server binary constructs one at process start; the bridge does not build
// one itself but runs a separate server subprocess per session.
type Sandbox struct {
	scopes      []string
	noTempFiles bool
	testMode    bool
	enforcer    Enforcer
	log         zerolog.Logger
}

// Enforcer is the interface for platform-specific kernel-level sandbox
// activation, distinct from the lexical+scope path validation every
// Sandbox performs regardless of platform.
type Enforcer interface {
	// Name identifies the enforcer ("landlock", "seatbelt", "none").
	Name() string

	// CheckPrerequisite returns a non-nil *Error if this enforcer cannot run
	// on the current system (old kernel, missing binary, unsupported OS).
	CheckPrerequisite() error

	// ActivateSelf applies process-wide enforcement restricting the calling
	// process (and its children) to the given scopes. Linux/Landlock uses
	// this; other enforcers no-op here and enforce per-command instead.
	ActivateSelf(scopes []string) error

	// WrapCommand returns argv wrapped so that, when executed, the command
	// is confined to the given scopes. macOS/Seatbelt uses this since
	// sandbox-exec wraps a single exec call; other enforcers return argv
	// unchanged.
	WrapCommand(argv []string, scopes []string) ([]string, error)
}
