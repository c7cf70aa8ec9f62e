package sandbox

import (
	"path/filepath"
	"strings"
)

// tempRoots are directories that, under no-temp-files mode, are rejected
// regardless of sandbox scope — even when a scope itself lies under one.
var tempRoots = []string{
	"/tmp",
	"/private/tmp",
	"/var/folders",
	"/private/var/folders",
	"/dev",
}

// NormalizeLexically performs stage-one path validation: split into
// components, drop ".", pop on ".." unless doing so would escape the root,
// and reassemble. No filesystem access occurs.
func NormalizeLexically(p string) string {
	if p == "" {
		return p
	}

	isAbs := strings.HasPrefix(p, "/")
	rawParts := strings.Split(p, "/")

	stack := make([]string, 0, len(rawParts))
	for _, part := range rawParts {
		switch part {
		case "", ".":
			// skip empty (from repeated slashes) and current-dir components
		case "..":
			if len(stack) > 0 && stack[len(stack)-1] != ".." {
				stack = stack[:len(stack)-1]
			} else if !isAbs {
				// Relative path: a leading ".." cannot be collapsed away.
				stack = append(stack, "..")
			}
			// Absolute path: ".." at the root is dropped (cannot escape root).
		default:
			stack = append(stack, part)
		}
	}

	joined := strings.Join(stack, "/")
	if isAbs {
		return "/" + joined
	}
	if joined == "" {
		return "."
	}
	return joined
}

// componentsOf splits a normalized absolute path into its path components,
// used for prefix-of-components scope containment (not byte-prefix, so
// "/a/bc" is never considered a descendant of "/a/b").
func componentsOf(p string) []string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// isUnderAny reports whether normalized absolute path `p` has any of `roots`
// as an ancestor, matching on path components rather than raw bytes.
func isUnderAny(p string, roots []string) bool {
	pc := componentsOf(p)
	for _, root := range roots {
		rc := componentsOf(root)
		if len(rc) > len(pc) {
			continue
		}
		match := true
		for i, rp := range rc {
			if pc[i] != rp {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// isUnderTempRoot reports whether the normalized absolute path lies under
// one of the fixed temp-directory roots rejected by no-temp-files mode.
func isUnderTempRoot(p string) bool {
	return isUnderAny(p, tempRoots)
}

// canonicalizeScope resolves a configured scope directory to an absolute,
// symlink-resolved path. In test mode, a resolution failure falls back to
// the lexically normalized raw path instead of erroring.
func canonicalizeScope(scope string, testMode bool) (string, error) {
	abs, err := filepath.Abs(scope)
	if err != nil {
		if testMode {
			return NormalizeLexically(scope), nil
		}
		return "", &Error{Kind: ErrCanonicalizationFailed, Path: scope, Reason: err.Error(), Cause: err}
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if testMode {
			return NormalizeLexically(abs), nil
		}
		return "", &Error{Kind: ErrCanonicalizationFailed, Path: scope, Reason: err.Error(), Cause: err}
	}
	return NormalizeLexically(resolved), nil
}
