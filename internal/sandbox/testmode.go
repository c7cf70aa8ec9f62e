package sandbox

import "sync/atomic"

// testModeEnabled is a process-wide flag examined only at Sandbox
// construction, never at runtime by a remote client — test mode is not a
// client-selectable setting. The test harness must call EnableTestMode
// before constructing any Sandbox.
var testModeEnabled atomic.Bool

// EnableTestMode flips the process-wide test-mode flag. It must only be
// called by test setup code before any Sandbox is constructed; it has no
// effect on sandboxes already built.
func EnableTestMode() {
	testModeEnabled.Store(true)
}

// DisableTestMode reverts EnableTestMode, for tests that need isolation
// between cases.
func DisableTestMode() {
	testModeEnabled.Store(false)
}

// TestModeEnabled reports the current process-wide test-mode flag.
func TestModeEnabled() bool {
	return testModeEnabled.Load()
}
