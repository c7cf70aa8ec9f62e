//go:build linux

package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// landlockEnforcer restricts the calling process's filesystem access to the
// configured scopes using the Linux Landlock LSM (kernel >= 5.13).
type landlockEnforcer struct{}

func (l *landlockEnforcer) Name() string { return "landlock" }

// accessFS is the full read+execute+write rule set applied to each scope.
const accessFS = unix.LANDLOCK_ACCESS_FS_READ_FILE |
	unix.LANDLOCK_ACCESS_FS_READ_DIR |
	unix.LANDLOCK_ACCESS_FS_WRITE_FILE |
	unix.LANDLOCK_ACCESS_FS_EXECUTE |
	unix.LANDLOCK_ACCESS_FS_MAKE_REG |
	unix.LANDLOCK_ACCESS_FS_MAKE_DIR |
	unix.LANDLOCK_ACCESS_FS_REMOVE_FILE |
	unix.LANDLOCK_ACCESS_FS_REMOVE_DIR

func (l *landlockEnforcer) CheckPrerequisite() error {
	major, minor, err := kernelVersion()
	if err != nil {
		return &Error{Kind: ErrPrerequisiteFailed, Reason: err.Error(), Cause: err}
	}
	if major < 5 || (major == 5 && minor < 13) {
		return &Error{Kind: ErrLandlockNotAvailable, Reason: fmt.Sprintf("kernel %d.%d is older than the required 5.13", major, minor)}
	}

	abi, err := unix.LandlockGetABIVersion()
	if err != nil || abi < 1 {
		return &Error{Kind: ErrLandlockNotAvailable, Cause: err}
	}
	return nil
}

func (l *landlockEnforcer) ActivateSelf(scopes []string) error {
	attr := unix.LandlockRulesetAttr{HandledAccessFs: accessFS}
	rulesetFd, err := unix.LandlockCreateRuleset(&attr, 0)
	if err != nil {
		return &Error{Kind: ErrPrerequisiteFailed, Reason: "landlock_create_ruleset: " + err.Error(), Cause: err}
	}
	defer unix.Close(rulesetFd)

	for _, scope := range scopes {
		fd, err := unix.Open(scope, unix.O_PATH|unix.O_CLOEXEC, 0)
		if err != nil {
			return &Error{Kind: ErrPrerequisiteFailed, Path: scope, Reason: "open scope: " + err.Error(), Cause: err}
		}
		pathBeneath := unix.LandlockPathBeneathAttr{AllowedAccess: accessFS, ParentFd: int32(fd)}
		addErr := unix.LandlockAddPathBeneathRule(rulesetFd, &pathBeneath, 0)
		_ = unix.Close(fd)
		if addErr != nil {
			return &Error{Kind: ErrPrerequisiteFailed, Path: scope, Reason: "landlock_add_rule: " + addErr.Error(), Cause: addErr}
		}
	}

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return &Error{Kind: ErrPrerequisiteFailed, Reason: "prctl(PR_SET_NO_NEW_PRIVS): " + err.Error(), Cause: err}
	}

	if err := unix.LandlockRestrictSelf(rulesetFd, 0); err != nil {
		return &Error{Kind: ErrPrerequisiteFailed, Reason: "landlock_restrict_self: " + err.Error(), Cause: err}
	}

	return nil
}

// WrapCommand is a no-op: Landlock restricts the process (and everything it
// subsequently execs) once, via ActivateSelf, rather than per command.
func (l *landlockEnforcer) WrapCommand(argv []string, scopes []string) ([]string, error) {
	return argv, nil
}

func kernelVersion() (major, minor int, err error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return 0, 0, err
	}
	release := nullTerminatedString(uts.Release[:])
	parts := strings.SplitN(release, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unparseable kernel release %q", release)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("unparseable kernel major version in %q: %w", release, err)
	}
	minorStr := parts[1]
	for i, r := range minorStr {
		if r < '0' || r > '9' {
			minorStr = minorStr[:i]
			break
		}
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("unparseable kernel minor version in %q: %w", release, err)
	}
	return major, minor, nil
}

func nullTerminatedString(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}
