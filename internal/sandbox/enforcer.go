package sandbox

import "runtime"

// NewEnforcer selects the platform-specific enforcer for the current OS.
func NewEnforcer() Enforcer {
	switch runtime.GOOS {
	case "linux":
		return &landlockEnforcer{}
	case "darwin":
		return &seatbeltEnforcer{}
	default:
		return &noneEnforcer{goos: runtime.GOOS}
	}
}

// noneEnforcer is selected on platforms with no supported kernel-level
// sandbox. CheckPrerequisite always fails with ErrUnsupportedOS; callers
// must pass allowNoSandbox (AHMA_NO_SANDBOX=1) to proceed.
type noneEnforcer struct {
	goos string
}

func (n *noneEnforcer) Name() string { return "none" }

func (n *noneEnforcer) CheckPrerequisite() error {
	return &Error{Kind: ErrUnsupportedOS, Reason: n.goos}
}

func (n *noneEnforcer) ActivateSelf(scopes []string) error { return nil }

func (n *noneEnforcer) WrapCommand(argv []string, scopes []string) ([]string, error) {
	return argv, nil
}
