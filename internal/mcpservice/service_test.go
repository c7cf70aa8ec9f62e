package mcpservice

import (
	"context"
	"os"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahma-mcp/ahma-mcp/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp/internal/config"
	"github.com/ahma-mcp/ahma-mcp/internal/operation"
	"github.com/ahma-mcp/ahma-mcp/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp/internal/shellpool"
)

func newTestService(t *testing.T, tools map[string]*config.ToolConfig) *Service {
	t.Helper()
	sandbox.EnableTestMode()
	t.Cleanup(sandbox.DisableTestMode)

	dir := t.TempDir()
	sb, err := sandbox.New([]string{dir}, sandbox.Options{}, zerolog.New(os.Stderr))
	require.NoError(t, err)

	pool, err := shellpool.NewPool(shellpool.Config{
		MaxTotalShells:    1,
		ShellSpawnTimeout: 50 * time.Millisecond,
		WorkerBinary:      "/nonexistent/ahma-shellworker-test-binary",
	}, zerolog.New(os.Stderr))
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)

	monitor := operation.NewMonitor(10, zerolog.New(os.Stderr))
	t.Cleanup(func() { monitor.GracefulShutdown(context.Background()) })

	dispatcher := adapter.NewDispatcher(sb, pool, monitor, 5*time.Second, zerolog.New(os.Stderr))
	return NewService(tools, dispatcher, monitor, dir, zerolog.New(os.Stderr))
}

func callReq(args map[string]any) *gomcp.CallToolRequest {
	return &gomcp.CallToolRequest{Params: &gomcp.CallToolParams{Arguments: args}}
}

func TestService_RegistersSubcommandsAsFlatToolNames(t *testing.T) {
	tools := map[string]*config.ToolConfig{
		"git": {
			Name: "git", Command: "echo git", Enabled: true,
			Subcommands: []config.SubcommandConfig{{Name: "status", Synchronous: true}},
		},
	}
	assert.Equal(t, "git_status", qualifiedName("git", "status"))
	newTestService(t, tools) // must not panic while registering
}

func TestService_HandleCall_SynchronousToolReturnsOutput(t *testing.T) {
	tools := map[string]*config.ToolConfig{
		"echo": {
			Name: "echo", Command: "echo hi-there", Enabled: true,
			Subcommands: []config.SubcommandConfig{{Name: "run", Synchronous: true}},
		},
	}
	s := newTestService(t, tools)

	result, err := s.handleCall(context.Background(), tools["echo"], &tools["echo"].Subcommands[0], true, callReq(nil))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
	text := result.Content[0].(*gomcp.TextContent).Text
	assert.Contains(t, text, "hi-there")
}

func TestService_HandleCall_DisabledToolReturnsStructuredError(t *testing.T) {
	tools := map[string]*config.ToolConfig{
		"off": {Name: "off", Command: "echo", Enabled: false},
	}
	s := newTestService(t, tools)

	result, err := s.handleCall(context.Background(), tools["off"], nil, false, callReq(nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	text := result.Content[0].(*gomcp.TextContent).Text
	assert.Contains(t, text, "disabled")
}

func TestService_HandleCall_AsyncDispatchReturnsOperationID(t *testing.T) {
	tools := map[string]*config.ToolConfig{
		"echo": {
			Name: "echo", Command: "echo async", Enabled: true,
			Subcommands: []config.SubcommandConfig{{Name: "run", Synchronous: false}},
		},
	}
	s := newTestService(t, tools)

	result, err := s.handleCall(context.Background(), tools["echo"], &tools["echo"].Subcommands[0], false, callReq(nil))
	require.NoError(t, err)
	text := result.Content[0].(*gomcp.TextContent).Text
	assert.Contains(t, text, "dispatched as operation")
}

func TestService_HandleCancel_UnknownOperationReturnsError(t *testing.T) {
	s := newTestService(t, map[string]*config.ToolConfig{})
	result, err := s.handleCancel(context.Background(), callReq(map[string]any{"operation_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
