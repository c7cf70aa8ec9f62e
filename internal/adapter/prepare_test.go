package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahma-mcp/ahma-mcp/internal/config"
)

func TestPrepareCommandAndArgs_SplitsCommandAndAppendsAssembledArgs(t *testing.T) {
	tool := &config.ToolConfig{
		Name:    "git",
		Command: "git status",
		Subcommands: []config.SubcommandConfig{
			{
				Name: "status",
				Options: []config.OptionConfig{
					{Name: "short", Type: config.OptionBoolean},
				},
			},
		},
	}

	program, args, err := PrepareCommandAndArgs(tool, "status", map[string]any{"short": true}, NewTempFileManager())
	require.NoError(t, err)
	assert.Equal(t, "git", program)
	assert.Equal(t, []string{"status", "--short"}, args)
}

func TestPrepareCommandAndArgs_UnknownSubcommandErrors(t *testing.T) {
	tool := &config.ToolConfig{Name: "git", Command: "git"}
	_, _, err := PrepareCommandAndArgs(tool, "bogus", nil, NewTempFileManager())
	require.Error(t, err)
	var adapterErr *Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, UnknownSubcommand, adapterErr.Kind)
}

func TestPrepareCommandAndArgs_EmptyCommandErrors(t *testing.T) {
	tool := &config.ToolConfig{Name: "broken", Command: "   "}
	_, _, err := PrepareCommandAndArgs(tool, "", nil, NewTempFileManager())
	require.Error(t, err)
	var adapterErr *Error
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, EmptyCommand, adapterErr.Kind)
}

func TestPrepareCommandAndArgs_AppendsShellRedirectForShellInvocation(t *testing.T) {
	tool := &config.ToolConfig{
		Name:    "run",
		Command: "bash",
		Subcommands: []config.SubcommandConfig{
			{
				Name:          "exec",
				HardcodedArgs: []string{"-c"},
				PositionalArgs: []config.PositionalArg{
					{Name: "script"},
				},
			},
		},
	}

	_, args, err := PrepareCommandAndArgs(tool, "exec", map[string]any{"script": "echo hi"}, NewTempFileManager())
	require.NoError(t, err)
	require.Len(t, args, 2)
	assert.Equal(t, "echo hi 2>&1", args[1])
}
