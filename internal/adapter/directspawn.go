package adapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	executil "github.com/ahma-mcp/ahma-mcp/internal/exec"
	"github.com/ahma-mcp/ahma-mcp/internal/execenv"
	"github.com/ahma-mcp/ahma-mcp/internal/operation"
)

// cancelGracePeriod is how long a cancelled subprocess gets to exit after
// SIGTERM before directSpawnCancellable escalates to SIGKILL.
const cancelGracePeriod = 5 * time.Second

// directSpawnResult runs program/args without going through the shell
// pool — the fallback path when the pool is exhausted or a worker could
// not execute the request.
func directSpawnResult(ctx context.Context, program string, args []string, workingDir string, timeout time.Duration) *operation.Result {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, program, args...)
	cmd.Dir = workingDir
	policy := execenv.DefaultShellEnvironmentPolicy()
	cmd.Env = execenv.EnvMapToSlice(execenv.CreateEnv(&policy))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	outBytes, _ := executil.LimitOutput(stdout.Bytes())
	errBytes, _ := executil.LimitOutput(stderr.Bytes())

	exitCode := 0
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		exitCode = 0
	case errors.As(runErr, &exitErr):
		exitCode = exitErr.ExitCode()
	default:
		return &operation.Result{
			ExitCode: -1,
			Stdout:   string(outBytes),
			Stderr:   string(errBytes),
			Success:  false,
			Reason:   runErr.Error(),
		}
	}

	return &operation.Result{
		ExitCode: exitCode,
		Stdout:   string(outBytes),
		Stderr:   string(errBytes),
		Success:  exitCode == 0,
	}
}

// directSpawnCancellable runs program/args the same way as
// directSpawnResult, but for the AsyncResultPush path: it streams
// incremental Output events through sender as the subprocess produces
// output, and wires ctx's cancellation to a graceful SIGTERM that
// escalates to SIGKILL if the process hasn't exited within
// cancelGracePeriod — the mechanism a cancelled operation's cancel func
// triggers by cancelling ctx.
func directSpawnCancellable(ctx context.Context, program string, args []string, workingDir string, sender CallbackSender) *operation.Result {
	cmd := exec.CommandContext(ctx, program, args...)
	cmd.Dir = workingDir
	policy := execenv.DefaultShellEnvironmentPolicy()
	cmd.Env = execenv.EnvMapToSlice(execenv.CreateEnv(&policy))

	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGTERM)
	}
	cmd.WaitDelay = cancelGracePeriod

	stdoutProgress := &lineProgressWriter{ctx: ctx, sender: sender, isStderr: false}
	stderrProgress := &lineProgressWriter{ctx: ctx, sender: sender, isStderr: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = io.MultiWriter(&stdout, stdoutProgress)
	cmd.Stderr = io.MultiWriter(&stderr, stderrProgress)

	runErr := cmd.Run()
	stdoutProgress.flush()
	stderrProgress.flush()

	outBytes, _ := executil.LimitOutput(stdout.Bytes())
	errBytes, _ := executil.LimitOutput(stderr.Bytes())

	exitCode := 0
	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		exitCode = 0
	case errors.As(runErr, &exitErr):
		exitCode = exitErr.ExitCode()
	default:
		return &operation.Result{
			ExitCode: -1,
			Stdout:   string(outBytes),
			Stderr:   string(errBytes),
			Success:  false,
			Reason:   runErr.Error(),
		}
	}

	return &operation.Result{
		ExitCode: exitCode,
		Stdout:   string(outBytes),
		Stderr:   string(errBytes),
		Success:  exitCode == 0,
	}
}

// lineProgressWriter relays completed lines of subprocess output as Output
// progress events as they arrive, buffering any trailing partial line
// until either the next newline or flush. It never fails a write on the
// sender's account.
type lineProgressWriter struct {
	ctx      context.Context
	sender   CallbackSender
	isStderr bool
	buf      bytes.Buffer
}

func (w *lineProgressWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimSuffix(line, "\n"))
	}
	return len(p), nil
}

// flush emits any buffered partial line that never reached a trailing
// newline before the command exited.
func (w *lineProgressWriter) flush() {
	if w.buf.Len() == 0 {
		return
	}
	w.emit(w.buf.String())
	w.buf.Reset()
}

func (w *lineProgressWriter) emit(line string) {
	if w.sender == nil {
		return
	}
	w.sender.Send(w.ctx, ProgressEvent{Kind: EventOutput, Line: line, IsStderr: w.isStderr})
}
