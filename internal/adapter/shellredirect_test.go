package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaybeAppendShellRedirect_AppendsWhenMissing(t *testing.T) {
	args := []string{"-c", "echo hi"}
	maybeAppendShellRedirect("bash", args)
	assert.Equal(t, "echo hi 2>&1", args[1])
}

func TestMaybeAppendShellRedirect_LeavesExistingRedirectAlone(t *testing.T) {
	args := []string{"-c", "echo hi 2>&1"}
	maybeAppendShellRedirect("sh", args)
	assert.Equal(t, "echo hi 2>&1", args[1])
}

func TestMaybeAppendShellRedirect_IgnoresNonShellPrograms(t *testing.T) {
	args := []string{"-c", "echo hi"}
	maybeAppendShellRedirect("python", args)
	assert.Equal(t, "echo hi", args[1])
}

func TestMaybeAppendShellRedirect_IgnoresMissingDashC(t *testing.T) {
	args := []string{"-lc", "echo hi"}
	maybeAppendShellRedirect("bash", args)
	assert.Equal(t, "echo hi", args[1])
}

func TestMaybeAppendShellRedirect_TrailingWhitespaceNoExtraSpace(t *testing.T) {
	args := []string{"-c", "echo hi\n"}
	maybeAppendShellRedirect("zsh", args)
	assert.Equal(t, "echo hi\n2>&1", args[1])
}
