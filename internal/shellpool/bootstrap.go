package shellpool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/exec"
	"time"

	executil "github.com/ahma-mcp/ahma-mcp/internal/exec"
)

const defaultRequestTimeout = 30 * time.Second

// RunBootstrapLoop is the worker side of the shell-pool protocol: it reads
// one newline-terminated JSON Request per iteration from stdin, executes it,
// and writes one newline-terminated JSON Response to stdout. It returns nil
// on a clean stdin close (the pool killed or released the worker).
func RunBootstrapLoop(stdin io.Reader, stdout io.Writer) error {
	reader := bufio.NewReaderSize(stdin, 1<<20)
	enc := json.NewEncoder(stdout)

	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			resp := handleLine(line)
			if encErr := enc.Encode(resp); encErr != nil {
				return encErr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func handleLine(line []byte) Response {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{ExitCode: -1, Stderr: "malformed request: " + err.Error()}
	}
	return executeRequest(req)
}

func executeRequest(req Request) Response {
	start := time.Now()

	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if len(req.Command) == 0 {
		return Response{ID: req.ID, ExitCode: -1, Stderr: "empty command", DurationMs: time.Since(start).Milliseconds()}
	}

	cmd := exec.CommandContext(ctx, req.Command[0], req.Command[1:]...)
	cmd.Dir = req.WorkingDir

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			stderrBuf.WriteString(runErr.Error())
		}
	}

	outBytes, _ := executil.LimitOutput(stdoutBuf.Bytes())
	errBytes, _ := executil.LimitOutput(stderrBuf.Bytes())

	return Response{
		ID:         req.ID,
		ExitCode:   exitCode,
		Stdout:     string(outBytes),
		Stderr:     string(errBytes),
		DurationMs: time.Since(start).Milliseconds(),
	}
}
