//go:build darwin

package sandbox

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// seatbeltEnforcer wraps dispatched commands with macOS sandbox-exec using a
// generated Seatbelt profile scoped to the sandbox's allowed roots. The
// profile always denies by default and allows file-read*/file-write* only
// under the configured scopes.
type seatbeltEnforcer struct{}

func (s *seatbeltEnforcer) Name() string { return "seatbelt" }

func (s *seatbeltEnforcer) CheckPrerequisite() error {
	if _, err := exec.LookPath("/usr/bin/sandbox-exec"); err != nil {
		return &Error{Kind: ErrMacOSSandboxNotAvailable, Cause: err}
	}
	if nestedSandboxDetected() {
		return &Error{Kind: ErrNestedSandboxDetected}
	}
	return nil
}

// ActivateSelf is a no-op: Seatbelt confines one exec call at a time, so
// enforcement happens per-command in WrapCommand instead of once at
// process start.
func (s *seatbeltEnforcer) ActivateSelf(scopes []string) error { return nil }

func (s *seatbeltEnforcer) WrapCommand(argv []string, scopes []string) ([]string, error) {
	if len(argv) == 0 {
		return nil, &Error{Kind: ErrPrerequisiteFailed, Reason: "empty command"}
	}
	profile := generateSeatbeltProfile(scopes)
	wrapped := append([]string{"/usr/bin/sandbox-exec", "-p", profile, "--"}, argv...)
	return wrapped, nil
}

// generateSeatbeltProfile builds a Seatbelt Profile Language document that
// denies everything by default and allows file-read*/file-write* only under
// the given scopes.
func generateSeatbeltProfile(scopes []string) string {
	var b strings.Builder
	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n")
	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow process-fork)\n")
	b.WriteString("(allow signal (target self))\n")
	b.WriteString("(allow sysctl-read)\n")
	b.WriteString("(allow mach-lookup)\n")

	for _, scope := range scopes {
		b.WriteString(fmt.Sprintf("(allow file-read* (subpath %q))\n", scope))
		b.WriteString(fmt.Sprintf("(allow file-write* (subpath %q))\n", scope))
	}

	return b.String()
}

// GenerateSeatbeltProfile is exported for tests.
func GenerateSeatbeltProfile(scopes []string) string {
	return generateSeatbeltProfile(scopes)
}

// nestedSandboxDetected reports whether this process is already running
// inside another Seatbelt profile (e.g. launched from within Cursor,
// VS Code's extension host sandbox, or a Docker Desktop VM shim).
func nestedSandboxDetected() bool {
	if os.Getenv("APP_SANDBOX_CONTAINER_ID") != "" {
		return true
	}
	if os.Getenv("SANDBOX_CONTAINER_TYPE") != "" {
		return true
	}
	return false
}
