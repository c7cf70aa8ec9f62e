package sandbox

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSandbox(t *testing.T, scopes []string, opts Options) *Sandbox {
	t.Helper()
	EnableTestMode()
	t.Cleanup(DisableTestMode)
	s, err := New(scopes, opts, zerolog.New(os.Stderr))
	require.NoError(t, err)
	return s
}

func TestSandbox_ValidatePath_RejectsOutsideScope(t *testing.T) {
	s := newTestSandbox(t, []string{"/a/b"}, Options{})

	_, err := s.ValidatePath("/a/b/../c")
	require.Error(t, err)
	var sbErr *Error
	require.ErrorAs(t, err, &sbErr)
	assert.Equal(t, ErrPathOutsideSandbox, sbErr.Kind)
	assert.Contains(t, sbErr.Error(), "/a/b")
}

func TestSandbox_ValidatePath_AllowsWithinScope(t *testing.T) {
	s := newTestSandbox(t, []string{"/a/b"}, Options{})

	got, err := s.ValidatePath("/a/b/c/../d")
	require.NoError(t, err)
	assert.Equal(t, "/a/b/d", got)
}

func TestSandbox_ValidatePath_HighSecurityRejectsTempEvenWithinScope(t *testing.T) {
	s := newTestSandbox(t, []string{"/tmp/workspace"}, Options{NoTempFiles: true})

	_, err := s.ValidatePath("/tmp/workspace/file.txt")
	require.Error(t, err)
	var sbErr *Error
	require.ErrorAs(t, err, &sbErr)
	assert.Equal(t, ErrHighSecurityViolation, sbErr.Kind)
}

func TestSandbox_ValidatePath_NoTempFilesAllowsNonTempScope(t *testing.T) {
	s := newTestSandbox(t, []string{"/a/b"}, Options{NoTempFiles: true})

	_, err := s.ValidatePath("/a/b/file.txt")
	require.NoError(t, err)
}

func TestNew_StrictModeRejectsRootScope(t *testing.T) {
	DisableTestMode()
	_, err := New([]string{"/"}, Options{}, zerolog.New(os.Stderr))
	require.Error(t, err)
}

func TestNew_StrictModeRejectsEmptyScope(t *testing.T) {
	DisableTestMode()
	_, err := New([]string{""}, Options{}, zerolog.New(os.Stderr))
	require.Error(t, err)
}

func TestNew_TestModeAllowsRootScope(t *testing.T) {
	EnableTestMode()
	defer DisableTestMode()

	s, err := New([]string{"/"}, Options{}, zerolog.New(os.Stderr))
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestPathOutsideSandboxError_EnumeratesScopes(t *testing.T) {
	s := newTestSandbox(t, []string{"/a/b", "/c/d"}, Options{})
	_, err := s.ValidatePath("/elsewhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/a/b")
	assert.Contains(t, err.Error(), "/c/d")
}
