package mcpservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ahma-mcp/ahma-mcp/internal/operation"
)

const (
	minAwaitTimeout = 5 * time.Second
	maxAwaitTimeout = 30 * time.Minute
	awaitMargin     = 5 * time.Second
)

func (s *Service) registerControlTools() {
	s.server.AddTool(&gomcp.Tool{
		Name:        "status",
		Description: "Return a snapshot of matching operations (active and recently completed).",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation_id": map[string]any{"type": "string"},
				"tool":         map[string]any{"type": "string"},
			},
		},
	}, s.handleStatus)

	s.server.AddTool(&gomcp.Tool{
		Name:        "await",
		Description: "Block until one matching operation terminates, or a computed timeout elapses.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation_id":    map[string]any{"type": "string"},
				"tools":           map[string]any{"type": "string", "description": "comma-separated tool names"},
				"timeout_seconds": map[string]any{"type": "integer"},
			},
		},
	}, s.handleAwait)

	s.server.AddTool(&gomcp.Tool{
		Name:        "cancel",
		Description: "Cancel an operation, recording a reason.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation_id": map[string]any{"type": "string"},
				"reason":       map[string]any{"type": "string"},
			},
			"required": []string{"operation_id"},
		},
	}, s.handleCancel)
}

func (s *Service) handleStatus(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	args := callArgs(req)
	opID, _ := args["operation_id"].(string)
	tool, _ := args["tool"].(string)

	if opID != "" {
		snap, hint, found := s.monitor.GetOperation(opID)
		if !found {
			return errorResult(&operation.Error{Kind: operation.NotFound, ID: opID}), nil
		}
		return snapshotResult(snap, hint), nil
	}

	snaps := s.monitor.ListOperations(tool)
	if len(snaps) == 0 {
		return textResult("no matching operations"), nil
	}
	var sb strings.Builder
	for i, snap := range snaps {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s (tool=%s) status=%s", snap.ID, snap.Tool, snap.Status))
	}
	return textResult(sb.String()), nil
}

func (s *Service) handleAwait(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	args := callArgs(req)
	opID, _ := args["operation_id"].(string)
	toolsCSV, _ := args["tools"].(string)
	var toolFilter []string
	if toolsCSV != "" {
		toolFilter = strings.Split(toolsCSV, ",")
		for i := range toolFilter {
			toolFilter[i] = strings.TrimSpace(toolFilter[i])
		}
	}

	timeout := s.computeAwaitTimeout(args, opID, toolFilter)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if opID != "" {
		snap, err := s.monitor.WaitForOperation(ctx, opID)
		if err != nil {
			return s.timeoutResult(opID, toolFilter), nil
		}
		return snapshotResult(snap, ""), nil
	}

	var idFilter []string
	snap, err := s.monitor.WaitForAny(ctx, toolFilter, idFilter, timeout)
	if err != nil {
		return s.timeoutResult(opID, toolFilter), nil
	}
	return snapshotResult(snap, ""), nil
}

func (s *Service) timeoutResult(opID string, toolFilter []string) *gomcp.CallToolResult {
	pending := s.monitor.ListOperations("")
	var names []string
	for _, snap := range pending {
		if snap.Status.Terminal() {
			continue
		}
		if opID != "" && snap.ID != opID {
			continue
		}
		if len(toolFilter) > 0 && !containsString(toolFilter, snap.Tool) {
			continue
		}
		names = append(names, snap.ID)
	}
	return textResult(fmt.Sprintf("await timed out; still pending: %s", strings.Join(names, ", ")))
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// computeAwaitTimeout picks the effective await timeout: an explicit
// timeout_seconds argument wins; otherwise a specific operation id uses
// that operation's declared timeout plus a small margin; otherwise the
// largest declared timeout across matched tools is used. Always clamped
// to [minAwaitTimeout, maxAwaitTimeout].
func (s *Service) computeAwaitTimeout(args map[string]any, opID string, toolFilter []string) time.Duration {
	if raw, ok := args["timeout_seconds"]; ok {
		if secs, ok := toSeconds(raw); ok {
			return clampAwait(time.Duration(secs) * time.Second)
		}
	}

	if opID != "" {
		if snap, _, found := s.monitor.GetOperation(opID); found && snap.Timeout > 0 {
			return clampAwait(snap.Timeout + awaitMargin)
		}
	}

	var maxTimeout time.Duration
	for _, tool := range s.tools {
		if !matchesToolFilter(tool.Name, toolFilter) {
			continue
		}
		if tool.TimeoutSeconds != nil {
			d := time.Duration(*tool.TimeoutSeconds) * time.Second
			if d > maxTimeout {
				maxTimeout = d
			}
		}
		for _, sc := range tool.Subcommands {
			if sc.TimeoutSeconds != nil {
				d := time.Duration(*sc.TimeoutSeconds) * time.Second
				if d > maxTimeout {
					maxTimeout = d
				}
			}
		}
	}
	if maxTimeout == 0 {
		maxTimeout = minAwaitTimeout
	}
	return clampAwait(maxTimeout)
}

func matchesToolFilter(name string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return containsString(filter, name)
}

func clampAwait(d time.Duration) time.Duration {
	if d < minAwaitTimeout {
		return minAwaitTimeout
	}
	if d > maxAwaitTimeout {
		return maxAwaitTimeout
	}
	return d
}

func toSeconds(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func (s *Service) handleCancel(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	args := callArgs(req)
	opID, _ := args["operation_id"].(string)
	reason, _ := args["reason"].(string)
	if reason == "" {
		reason = "cancelled by client"
	}

	if err := s.monitor.CancelOperationWithReason(opID, reason); err != nil {
		return errorResult(err), nil
	}

	return textResult(fmt.Sprintf(
		"operation %s cancelled (reason=%q); use 'status' to confirm or 'await' to block on another operation",
		opID, reason,
	)), nil
}
