package adapter

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahma-mcp/ahma-mcp/internal/config"
	"github.com/ahma-mcp/ahma-mcp/internal/operation"
	"github.com/ahma-mcp/ahma-mcp/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp/internal/shellpool"
)

// newTestDispatcher builds a Dispatcher whose pool can never successfully
// spawn a worker (nonexistent binary path), forcing every dispatch through
// the direct-spawn fallback path — exercising that path without needing a
// real shell-worker binary on the test machine.
func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
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

	d := NewDispatcher(sb, pool, monitor, 5*time.Second, zerolog.New(os.Stderr))
	return d, dir
}

func TestDispatcher_SynchronousRunsToCompletion(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &config.ToolConfig{Name: "echo", Command: "echo hello"}

	result, opID, err := d.Dispatch(context.Background(), tool, Request{
		Tool:       "echo",
		WorkingDir: dir,
		Mode:       Synchronous,
	})

	require.NoError(t, err)
	assert.Empty(t, opID)
	require.NotNil(t, result)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.True(t, strings.Contains(result.Stdout, "hello"))
}

func TestDispatcher_AsyncReturnsOperationIDAndCompletesInBackground(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &config.ToolConfig{Name: "echo", Command: "echo async-hi"}

	result, opID, err := d.Dispatch(context.Background(), tool, Request{
		Tool:       "echo",
		WorkingDir: dir,
		Mode:       AsyncResultPush,
	})

	require.NoError(t, err)
	assert.Nil(t, result)
	require.NotEmpty(t, opID)

	snap, waitErr := d.Monitor.WaitForOperation(context.Background(), opID)
	require.NoError(t, waitErr)
	assert.Equal(t, operation.Completed, snap.Status)
	require.NotNil(t, snap.Result)
	assert.True(t, strings.Contains(snap.Result.Stdout, "async-hi"))
}

func TestDispatcher_NonexistentProgramReportsFailure(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &config.ToolConfig{Name: "bogus", Command: "this-binary-does-not-exist-xyz"}

	result, _, err := d.Dispatch(context.Background(), tool, Request{
		Tool:       "bogus",
		WorkingDir: dir,
		Mode:       Synchronous,
	})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
}

func TestDispatcher_AsyncStreamsProgressEventsInOrder(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &config.ToolConfig{Name: "echo", Command: "echo stream-me"}

	sender := NewChannelCallbackSender("", 32)
	_, opID, err := d.Dispatch(context.Background(), tool, Request{
		Tool:       "echo",
		WorkingDir: dir,
		Mode:       AsyncResultPush,
		Callback:   sender,
	})
	require.NoError(t, err)
	require.NotEmpty(t, opID)

	var kinds []EventKind
	for ev := range sender.Events() {
		kinds = append(kinds, ev.Kind)
	}

	require.NotEmpty(t, kinds)
	assert.Equal(t, EventStarted, kinds[0])
	assert.Equal(t, EventFinalResult, kinds[len(kinds)-1])
	assert.Contains(t, kinds, EventOutput)
	assert.Contains(t, kinds, EventCompleted)
}

func TestDispatcher_CancelSendsSignalAndStopsSubprocess(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &config.ToolConfig{Name: "sleeper", Command: "sleep 30"}

	_, opID, err := d.Dispatch(context.Background(), tool, Request{
		Tool:       "sleeper",
		WorkingDir: dir,
		Mode:       AsyncResultPush,
	})
	require.NoError(t, err)
	require.NotEmpty(t, opID)

	// Let the subprocess actually start before cancelling it.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, d.Monitor.CancelOperationWithReason(opID, "test cancel"))

	snap, waitErr := d.Monitor.WaitForOperation(context.Background(), opID)
	require.NoError(t, waitErr)
	assert.Equal(t, operation.Cancelled, snap.Status)
	assert.Less(t, time.Since(start), cancelGracePeriod)
}

func TestDispatcher_RejectsFileArgPathOutsideSandbox(t *testing.T) {
	d, dir := newTestDispatcher(t)
	tool := &config.ToolConfig{
		Name:    "writer",
		Command: "echo",
		Subcommands: []config.SubcommandConfig{
			{
				Name:    "run",
				Options: []config.OptionConfig{{Name: "output", Type: config.OptionString, FileArg: true}},
			},
		},
	}

	_, _, err := d.Dispatch(context.Background(), tool, Request{
		Tool:       "writer",
		Subcommand: "run",
		Args:       map[string]any{"output": "/etc/passwd"},
		WorkingDir: dir,
		Mode:       Synchronous,
	})
	require.Error(t, err)
}

func TestDispatcher_TimeoutResolutionPrefersCaller(t *testing.T) {
	callerSeconds := 7
	toolSeconds := 99
	tool := &config.ToolConfig{TimeoutSeconds: &toolSeconds}

	got := resolveTimeout(&callerSeconds, nil, tool, time.Minute)
	assert.Equal(t, 7*time.Second, got)
}

func TestDispatcher_TimeoutResolutionFallsBackToToolThenDefault(t *testing.T) {
	toolSeconds := 42
	tool := &config.ToolConfig{TimeoutSeconds: &toolSeconds}
	assert.Equal(t, 42*time.Second, resolveTimeout(nil, nil, tool, time.Minute))

	bareTool := &config.ToolConfig{}
	assert.Equal(t, time.Minute, resolveTimeout(nil, nil, bareTool, time.Minute))
}
