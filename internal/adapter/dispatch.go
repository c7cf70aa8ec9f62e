package adapter

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ahma-mcp/ahma-mcp/internal/config"
	"github.com/ahma-mcp/ahma-mcp/internal/operation"
	"github.com/ahma-mcp/ahma-mcp/internal/sandbox"
	"github.com/ahma-mcp/ahma-mcp/internal/shellpool"
)

// Dispatcher turns a resolved Request into a running command. Synchronous
// requests go through the shell pool (falling back to a direct spawn);
// AsyncResultPush requests always run as a cancellable direct spawn tracked
// on the operation monitor.
type Dispatcher struct {
	Sandbox        *sandbox.Sandbox
	Pool           *shellpool.Pool
	Monitor        *operation.Monitor
	TempFiles      *TempFileManager
	DefaultTimeout time.Duration
	log            zerolog.Logger
}

// NewDispatcher constructs a Dispatcher. defaultTimeout is the last-resort
// timeout when neither the caller, the subcommand, nor the tool declares
// one.
func NewDispatcher(sb *sandbox.Sandbox, pool *shellpool.Pool, monitor *operation.Monitor, defaultTimeout time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Sandbox:        sb,
		Pool:           pool,
		Monitor:        monitor,
		TempFiles:      NewTempFileManager(),
		DefaultTimeout: defaultTimeout,
		log:            log.With().Str("component", "adapter").Logger(),
	}
}

// Dispatch prepares and runs req against tool. Synchronous requests block
// until completion and return the final Result directly; AsyncResultPush
// requests return immediately with an operation id whose lifecycle can be
// queried through the Dispatcher's Monitor.
func (d *Dispatcher) Dispatch(ctx context.Context, tool *config.ToolConfig, req Request) (*operation.Result, string, error) {
	sc := tool.Subcommand(req.Subcommand)
	timeout := resolveTimeout(req.CallerTimeout, sc, tool, d.DefaultTimeout)

	validatedDir, err := d.Sandbox.ValidatePath(req.WorkingDir)
	if err != nil {
		return nil, "", err
	}

	if err := d.validatePathArgs(sc, req.Args); err != nil {
		return nil, "", err
	}

	program, args, err := PrepareCommandAndArgs(tool, req.Subcommand, req.Args, d.TempFiles)
	if err != nil {
		return nil, "", err
	}

	if req.Mode == Synchronous {
		result := d.run(ctx, program, args, validatedDir, timeout)
		return result, "", nil
	}

	opID := req.OperationID
	if opID == "" {
		opID = uuid.NewString()
	}
	op := d.Monitor.CreateOperation(opID, req.Tool, timeout)
	_ = d.Monitor.UpdateStatus(op.ID, operation.InProgress, nil)

	sender := req.Callback
	if sender != nil {
		sender.Send(ctx, ProgressEvent{
			Kind:        EventStarted,
			Command:     program,
			Description: req.Tool,
		})
	}

	startedAt := time.Now()
	runCtx, cancel := context.WithTimeout(context.Background(), timeout)
	op.SetCancelFunc(func(reason string) {
		d.log.Info().Str("operation_id", op.ID).Str("reason", reason).Msg("cancelling operation, sending SIGTERM")
		cancel()
	})

	go func() {
		defer cancel()
		result := directSpawnCancellable(runCtx, program, args, validatedDir, sender)
		durationMs := time.Since(startedAt).Milliseconds()

		status := operation.Completed
		kind := EventCompleted
		if !result.Success {
			status, kind = operation.Failed, EventFailed
		}

		if err := d.Monitor.UpdateStatus(op.ID, status, result); err != nil {
			if asErr, ok := err.(*operation.Error); ok && asErr.Kind == operation.AlreadyTerminal {
				// Already finalized by a cancel that raced ahead of us.
				kind = EventCancelled
			} else {
				d.log.Warn().Err(err).Str("operation_id", op.ID).Msg("failed to record operation completion")
			}
		}

		if sender == nil {
			return
		}
		bg := context.Background()
		sender.Send(bg, ProgressEvent{
			Kind:       kind,
			Message:    result.Reason,
			Error:      result.Reason,
			DurationMs: durationMs,
		})
		sender.Send(bg, ProgressEvent{
			Kind:             EventFinalResult,
			Command:          program,
			Description:      req.Tool,
			WorkingDirectory: validatedDir,
			FullOutput:       result.Stdout + result.Stderr,
			Success:          result.Success,
			DurationMs:       durationMs,
		})
		if closer, ok := sender.(*ChannelCallbackSender); ok {
			closer.Close()
		}
	}()

	return nil, op.ID, nil
}

// validatePathArgs runs every file_arg option value present in args
// through the sandbox validator, skipping values that contain a newline —
// those are inline content destined for a temp file, not a caller-given
// path. The synthesized temp file path is not run through the validator.
func (d *Dispatcher) validatePathArgs(sc *config.SubcommandConfig, args map[string]any) error {
	if sc == nil {
		return nil
	}
	for _, opt := range sc.Options {
		if !opt.FileArg {
			continue
		}
		val, present := args[opt.Name]
		if !present && opt.Alias != "" {
			val, present = args[opt.Alias]
		}
		if !present {
			continue
		}
		if err := d.validatePathValue(val); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) validatePathValue(val any) error {
	switch v := val.(type) {
	case string:
		if strings.Contains(v, "\n") {
			return nil
		}
		_, err := d.Sandbox.ValidatePath(v)
		return err
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && !strings.Contains(s, "\n") {
				if _, err := d.Sandbox.ValidatePath(s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// run executes program/args, preferring the shell pool and falling back
// to a direct spawn when the pool is exhausted.
func (d *Dispatcher) run(ctx context.Context, program string, args []string, workingDir string, timeout time.Duration) *operation.Result {
	req := shellpool.Request{
		ID:         uuid.NewString(),
		Command:    append([]string{program}, args...),
		WorkingDir: workingDir,
		TimeoutMs:  timeout.Milliseconds(),
	}

	worker, err := d.Pool.Acquire(ctx, workingDir)
	if err == nil {
		defer d.Pool.Release(worker)
		resp, execErr := worker.Execute(ctx, req)
		if execErr != nil {
			d.Pool.Discard(worker)
			return directSpawnResult(ctx, program, args, workingDir, timeout)
		}
		return &operation.Result{
			ExitCode: resp.ExitCode,
			Stdout:   resp.Stdout,
			Stderr:   resp.Stderr,
			Success:  resp.ExitCode == 0,
		}
	}

	return directSpawnResult(ctx, program, args, workingDir, timeout)
}

func resolveTimeout(callerSeconds *int, sc *config.SubcommandConfig, tool *config.ToolConfig, fallback time.Duration) time.Duration {
	if callerSeconds != nil {
		return time.Duration(*callerSeconds) * time.Second
	}
	if sc != nil && sc.TimeoutSeconds != nil {
		return time.Duration(*sc.TimeoutSeconds) * time.Second
	}
	if tool.TimeoutSeconds != nil {
		return time.Duration(*tool.TimeoutSeconds) * time.Second
	}
	return fallback
}
