package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadToolDirectory_LoadsDeclaredFields(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "git.json", `{
		"name": "git",
		"command": "git",
		"enabled": true,
		"subcommands": [
			{
				"name": "status",
				"synchronous": true,
				"options": [
					{"name": "short", "type": "boolean", "alias": "s"}
				],
				"positional_args": [
					{"name": "pathspec", "required": false}
				]
			}
		]
	}`)

	tools, err := LoadToolDirectory(dir)
	require.NoError(t, err)
	require.Contains(t, tools, "git")

	git := tools["git"]
	assert.Equal(t, "git", git.Command)
	require.Len(t, git.Subcommands, 1)

	status := git.Subcommand("status")
	require.NotNil(t, status)
	assert.True(t, status.Synchronous)

	opt := status.Option("s")
	require.NotNil(t, opt)
	assert.Equal(t, "short", opt.Name)
}

func TestLoadToolDirectory_DuplicateNameAcrossFilesErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"name": "dup", "command": "echo", "enabled": true}`)
	writeFile(t, dir, "b.json", `{"name": "dup", "command": "cat", "enabled": true}`)

	_, err := LoadToolDirectory(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestLoadToolDirectory_IgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "tool.json", `{"name": "only", "command": "ls", "enabled": true}`)
	writeFile(t, dir, "README.md", `not a tool`)

	tools, err := LoadToolDirectory(dir)
	require.NoError(t, err)
	assert.Len(t, tools, 1)
}

func TestLoadToolDirectory_EmptyNameErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"command": "ls", "enabled": true}`)

	_, err := LoadToolDirectory(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool name must not be empty")
}
