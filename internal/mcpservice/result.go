package mcpservice

import (
	"fmt"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ahma-mcp/ahma-mcp/internal/operation"
)

func textResult(text string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: text}},
	}
}

func errorResult(err error) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

func resultToCallResult(result *operation.Result) *gomcp.CallToolResult {
	if result == nil {
		return textResult("")
	}
	text := result.Stdout
	if result.Stderr != "" {
		text = fmt.Sprintf("%s\n--- stderr ---\n%s", text, result.Stderr)
	}
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: text}},
		IsError: !result.Success,
	}
}

func snapshotResult(snap operation.Snapshot, hint string) *gomcp.CallToolResult {
	text := fmt.Sprintf("operation %s (tool=%s) status=%s", snap.ID, snap.Tool, snap.Status)
	if snap.Result != nil {
		text += fmt.Sprintf("\nexit_code=%d success=%t", snap.Result.ExitCode, snap.Result.Success)
		if snap.Result.Reason != "" {
			text += fmt.Sprintf(" reason=%q", snap.Result.Reason)
		}
	}
	if hint != "" {
		text += "\nhint: " + hint
	}
	return textResult(text)
}
