package sandbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLexically(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"/a/b/../c", "/a/c"},
		{"/a/b/c/../d", "/a/b/d"},
		{"/a/./b", "/a/b"},
		{"/a//b", "/a/b"},
		{"/../a", "/a"},
		{"/", "/"},
		{"", ""},
		{"relative/../path", "path"},
		{"../escape", "../escape"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeLexically(tt.input))
		})
	}
}

func TestNormalizeLexically_Idempotent(t *testing.T) {
	inputs := []string{"/a/b/../c", "/a/b/c/../d", "/a/./b/../../c", "/x/y/z"}
	for _, in := range inputs {
		once := NormalizeLexically(in)
		twice := NormalizeLexically(once)
		assert.Equal(t, once, twice, "normalize(normalize(p)) must equal normalize(p) for %q", in)
	}
}

func TestIsUnderAny(t *testing.T) {
	roots := []string{"/a/b"}
	assert.True(t, isUnderAny("/a/b", roots))
	assert.True(t, isUnderAny("/a/b/c", roots))
	assert.False(t, isUnderAny("/a/bc", roots), "byte-prefix must not match, only component-prefix")
	assert.False(t, isUnderAny("/a", roots))
}

func TestIsUnderTempRoot(t *testing.T) {
	assert.True(t, isUnderTempRoot("/tmp/foo"))
	assert.True(t, isUnderTempRoot("/private/var/folders/xy"))
	assert.False(t, isUnderTempRoot("/home/user/project"))
}
