package sandbox

import (
	"fmt"

	"github.com/rs/zerolog"
)

// New validates and canonicalizes scopes, selects the platform enforcer for
// the current OS, and returns a ready-to-use Sandbox. In test mode (see
// EnableTestMode), the "/" and empty-scope rejections are skipped and
// canonicalization failures fall back to the raw path instead of erroring.
func New(scopes []string, opts Options, log zerolog.Logger) (*Sandbox, error) {
	testMode := TestModeEnabled()

	canonical := make([]string, 0, len(scopes))
	for _, raw := range scopes {
		if !testMode && (raw == "/" || raw == "") {
			return nil, &Error{
				Kind:   ErrPrerequisiteFailed,
				Reason: fmt.Sprintf("root '/' or empty path is not a valid sandbox scope (got %q)", raw),
			}
		}

		resolved, err := canonicalizeScope(raw, testMode)
		if err != nil {
			return nil, err
		}

		if !testMode && resolved == "/" {
			return nil, &Error{
				Kind:   ErrPrerequisiteFailed,
				Reason: fmt.Sprintf("root '/' is not a valid sandbox scope (resolved from %q)", raw),
			}
		}

		canonical = append(canonical, resolved)
	}

	s := &Sandbox{
		scopes:      canonical,
		noTempFiles: opts.NoTempFiles,
		testMode:    testMode,
		enforcer:    NewEnforcer(),
		log:         log.With().Str("component", "sandbox").Logger(),
	}
	return s, nil
}

// Scopes returns the sandbox's canonical allowed root directories.
func (s *Sandbox) Scopes() []string {
	return append([]string(nil), s.scopes...)
}

// ValidatePath runs both validation stages against p and returns the
// normalized, absolute path on success.
func (s *Sandbox) ValidatePath(p string) (string, error) {
	normalized := NormalizeLexically(p)

	if !isUnderAny(normalized, s.scopes) {
		return "", &Error{Kind: ErrPathOutsideSandbox, Path: p, Scopes: s.scopes}
	}

	if s.noTempFiles && isUnderTempRoot(normalized) {
		return "", &Error{Kind: ErrHighSecurityViolation, Path: p}
	}

	return normalized, nil
}

// Activate performs platform-level kernel enforcement (Landlock on Linux),
// applying to the calling process and everything it subsequently execs. On
// macOS this is a no-op; macOS enforcement happens per-command via
// WrapCommand instead.
func (s *Sandbox) Activate(allowNoSandbox bool) error {
	if err := s.enforcer.CheckPrerequisite(); err != nil {
		if allowNoSandbox {
			s.log.Warn().Err(err).Msg("sandbox prerequisite unmet, continuing unsandboxed per opt-out flag")
			return nil
		}
		return err
	}
	if err := s.enforcer.ActivateSelf(s.scopes); err != nil {
		return err
	}
	s.log.Info().Str("enforcer", s.enforcer.Name()).Strs("scopes", s.scopes).Msg("sandbox activated")
	return nil
}

// WrapCommand applies per-command platform enforcement (Seatbelt on macOS)
// to argv. On platforms whose enforcer activates process-wide instead
// (Linux Landlock), this returns argv unchanged.
func (s *Sandbox) WrapCommand(argv []string) ([]string, error) {
	return s.enforcer.WrapCommand(argv, s.scopes)
}

// EnforcerName reports which platform enforcer this sandbox selected.
func (s *Sandbox) EnforcerName() string {
	return s.enforcer.Name()
}
