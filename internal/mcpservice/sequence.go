package mcpservice

import (
	"context"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ahma-mcp/ahma-mcp/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp/internal/config"
	"github.com/ahma-mcp/ahma-mcp/internal/operation"
)

// runSequence executes sc's declared sequence of steps in order. A
// synchronous sequence awaits every step before returning, terminating on
// the first failing step and reporting its output. An asynchronous
// sequence dispatches the first step, returns its operation id
// immediately, and continues the remaining steps in the background as
// each prior step completes successfully.
func (s *Service) runSequence(ctx context.Context, tool *config.ToolConfig, sc *config.SubcommandConfig, synchronous bool, callerArgs map[string]any) (*gomcp.CallToolResult, error) {
	if synchronous {
		for i, step := range sc.Sequence {
			target, targetSub, ok := s.resolveStep(step)
			if !ok {
				return errorResult(&Error{Kind: UnknownTool, Tool: step.Tool}), nil
			}

			result, _, err := s.dispatcher.Dispatch(ctx, target, adapter.Request{
				Tool:       qualifiedName(target.Name, targetSub),
				Subcommand: targetSub,
				Args:       mergeArgs(step.Args, callerArgs),
				WorkingDir: s.workingDir,
				Mode:       adapter.Synchronous,
			})
			if err != nil || !result.Success {
				return errorResult(&Error{Kind: SequenceStepFailed, Tool: tool.Name, Step: i, Err: resultErr(result, err)}), nil
			}
		}
		return textResult("sequence completed"), nil
	}

	if len(sc.Sequence) == 0 {
		return textResult("sequence has no steps"), nil
	}

	firstTarget, firstSub, ok := s.resolveStep(sc.Sequence[0])
	if !ok {
		return errorResult(&Error{Kind: UnknownTool, Tool: sc.Sequence[0].Tool}), nil
	}

	_, opID, err := s.dispatcher.Dispatch(ctx, firstTarget, adapter.Request{
		Tool:       qualifiedName(firstTarget.Name, firstSub),
		Subcommand: firstSub,
		Args:       mergeArgs(sc.Sequence[0].Args, callerArgs),
		WorkingDir: s.workingDir,
		Mode:       adapter.AsyncResultPush,
	})
	if err != nil {
		return errorResult(err), nil
	}

	go s.continueSequenceChain(tool, sc, callerArgs, opID, 0)

	return textResult("sequence dispatched as operation " + opID), nil
}

// continueSequenceChain waits for the step-at-index operation to
// complete, then dispatches the next step if it succeeded.
func (s *Service) continueSequenceChain(tool *config.ToolConfig, sc *config.SubcommandConfig, callerArgs map[string]any, opID string, index int) {
	snap, err := s.monitor.WaitForOperation(context.Background(), opID)
	if err != nil || snap.Result == nil || !snap.Result.Success {
		s.log.Info().Str("tool", tool.Name).Int("step", index).Msg("sequence chain stopped: step did not succeed")
		return
	}

	next := index + 1
	if next >= len(sc.Sequence) {
		return
	}

	target, targetSub, ok := s.resolveStep(sc.Sequence[next])
	if !ok {
		s.log.Warn().Str("tool", tool.Name).Int("step", next).Msg("sequence chain stopped: unknown step target")
		return
	}

	_, nextOpID, err := s.dispatcher.Dispatch(context.Background(), target, adapter.Request{
		Tool:       qualifiedName(target.Name, targetSub),
		Subcommand: targetSub,
		Args:       mergeArgs(sc.Sequence[next].Args, callerArgs),
		WorkingDir: s.workingDir,
		Mode:       adapter.AsyncResultPush,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("tool", tool.Name).Int("step", next).Msg("sequence chain stopped: dispatch failed")
		return
	}

	s.continueSequenceChain(tool, sc, callerArgs, nextOpID, next)
}

func (s *Service) resolveStep(step config.SequenceStep) (*config.ToolConfig, string, bool) {
	target, ok := s.tools[step.Tool]
	if !ok {
		return nil, "", false
	}
	return target, step.Subcommand, true
}

func mergeArgs(stepArgs, callerArgs map[string]any) map[string]any {
	merged := map[string]any{}
	for k, v := range stepArgs {
		merged[k] = v
	}
	for k, v := range callerArgs {
		merged[k] = v
	}
	return merged
}

func resultErr(result *operation.Result, err error) error {
	if err != nil {
		return err
	}
	if result != nil {
		reason := result.Reason
		if reason == "" {
			reason = "command exited non-zero"
		}
		if out := result.Stdout + result.Stderr; out != "" {
			reason += "\noutput:\n" + out
		}
		return &sequenceFailure{reason: reason}
	}
	return &sequenceFailure{reason: "command exited non-zero"}
}

type sequenceFailure struct{ reason string }

func (e *sequenceFailure) Error() string { return e.reason }
