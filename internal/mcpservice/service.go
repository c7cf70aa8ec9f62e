package mcpservice

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/ahma-mcp/ahma-mcp/internal/adapter"
	"github.com/ahma-mcp/ahma-mcp/internal/config"
	"github.com/ahma-mcp/ahma-mcp/internal/operation"
)

// Service implements the MCP server role: it builds an mcp.Server,
// advertises every configured tool (exploded per subcommand; disabled
// tools carry a "[disabled]" description prefix and reject calls) plus the
// synthetic status/await/cancel control tools, and routes calls to the
// adapter's Dispatcher.
type Service struct {
	tools      map[string]*config.ToolConfig
	dispatcher *adapter.Dispatcher
	monitor    *operation.Monitor
	workingDir string
	server     *gomcp.Server
	log        zerolog.Logger
}

// NewService constructs a Service, registers every tool and the control
// tools on a fresh mcp.Server, and returns it ready to Run.
func NewService(tools map[string]*config.ToolConfig, dispatcher *adapter.Dispatcher, monitor *operation.Monitor, workingDir string, log zerolog.Logger) *Service {
	s := &Service{
		tools:      tools,
		dispatcher: dispatcher,
		monitor:    monitor,
		workingDir: workingDir,
		server: gomcp.NewServer(&gomcp.Implementation{
			Name:    "ahma-mcp",
			Version: "0.1.0",
		}, nil),
		log: log.With().Str("component", "mcpservice").Logger(),
	}
	s.registerTools()
	s.registerControlTools()
	return s
}

// Server returns the underlying mcp.Server, ready to Run against a
// transport.
func (s *Service) Server() *gomcp.Server {
	return s.server
}

func (s *Service) registerTools() {
	for _, tool := range s.tools {
		if len(tool.Subcommands) == 0 {
			s.registerOne(tool, nil)
			continue
		}
		for i := range tool.Subcommands {
			s.registerOne(tool, &tool.Subcommands[i])
		}
	}
}

func (s *Service) registerOne(tool *config.ToolConfig, sc *config.SubcommandConfig) {
	subName := ""
	description := tool.Description
	schema := map[string]any{"type": "object", "properties": map[string]any{}}
	synchronous := false

	if sc != nil {
		subName = sc.Name
		description = sc.Description
		schema = inputSchema(sc)
		synchronous = sc.Synchronous
	}

	name := qualifiedName(tool.Name, subName)
	if !tool.Enabled {
		description = "[disabled] " + description
	}

	s.server.AddTool(&gomcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, func(ctx context.Context, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
		return s.handleCall(ctx, tool, sc, synchronous, req)
	})
}

func (s *Service) handleCall(ctx context.Context, tool *config.ToolConfig, sc *config.SubcommandConfig, synchronous bool, req *gomcp.CallToolRequest) (*gomcp.CallToolResult, error) {
	if !tool.Enabled {
		return errorResult(&Error{Kind: ToolDisabled, Tool: tool.Name, Field: "enabled"}), nil
	}

	if sc != nil && len(sc.Sequence) > 0 {
		return s.runSequence(ctx, tool, sc, synchronous, callArgs(req))
	}

	subName := ""
	if sc != nil {
		subName = sc.Name
	}

	mode := adapter.AsyncResultPush
	if synchronous {
		mode = adapter.Synchronous
	}

	dispatchReq := adapter.Request{
		Tool:       qualifiedName(tool.Name, subName),
		Subcommand: subName,
		Args:       callArgs(req),
		WorkingDir: s.workingDir,
		Mode:       mode,
	}

	var sender *adapter.ChannelCallbackSender
	if mode == adapter.AsyncResultPush {
		dispatchReq.OperationID = uuid.NewString()
		sender = adapter.NewChannelCallbackSender(dispatchReq.OperationID, 64)
		dispatchReq.Callback = sender
		go s.relayProgress(req, sender)
	}

	result, opID, err := s.dispatcher.Dispatch(ctx, tool, dispatchReq)
	if err != nil {
		return errorResult(err), nil
	}
	if mode == adapter.AsyncResultPush {
		return textResult(fmt.Sprintf("dispatched as operation %s", opID)), nil
	}
	return resultToCallResult(result), nil
}

// relayProgress drains sender's event stream and forwards each entry as an
// MCP notifications/progress message on the session the call arrived on,
// tagged with the client's requested progress token. It runs detached from
// the originating call's context — the call handler has already returned
// by the time most of these events are generated — and always drains the
// channel to completion so the dispatcher's Send calls never block forever
// on a client that never asked for progress updates.
func (s *Service) relayProgress(req *gomcp.CallToolRequest, sender *adapter.ChannelCallbackSender) {
	token, wantsProgress := progressToken(req)
	session := callSession(req)

	ctx := context.Background()
	for ev := range sender.Events() {
		if !wantsProgress || session == nil {
			continue
		}
		if err := session.NotifyProgress(ctx, &gomcp.ProgressNotificationParams{
			ProgressToken: token,
			Message:       progressMessage(ev),
		}); err != nil {
			s.log.Debug().Err(err).Str("operation_id", ev.OperationID).Msg("failed to deliver progress notification")
		}
	}
}

// progressToken extracts the client-supplied _meta.progressToken from a
// tool call, if any — only calls that opt in by sending one get relayed
// notifications/progress traffic.
func progressToken(req *gomcp.CallToolRequest) (any, bool) {
	if req == nil || req.Params == nil || req.Params.Meta == nil {
		return nil, false
	}
	tok, ok := req.Params.Meta["progressToken"]
	return tok, ok
}

// callSession returns the ServerSession a tool call arrived on, for
// sending it server-initiated notifications after the handler returns.
func callSession(req *gomcp.CallToolRequest) *gomcp.ServerSession {
	if req == nil {
		return nil
	}
	return req.Session
}

// progressMessage renders one ProgressEvent as the human-readable message
// carried on its notifications/progress relay.
func progressMessage(ev adapter.ProgressEvent) string {
	switch ev.Kind {
	case adapter.EventStarted:
		return fmt.Sprintf("started %s", ev.Command)
	case adapter.EventOutput:
		if ev.IsStderr {
			return "stderr: " + ev.Line
		}
		return "stdout: " + ev.Line
	case adapter.EventProgress:
		return ev.Message
	case adapter.EventCompleted:
		return "completed"
	case adapter.EventFailed:
		return "failed: " + ev.Error
	case adapter.EventCancelled:
		return "cancelled: " + ev.Message
	case adapter.EventFinalResult:
		return fmt.Sprintf("final result (success=%v)", ev.Success)
	default:
		return string(ev.Kind)
	}
}

func callArgs(req *gomcp.CallToolRequest) map[string]any {
	if req == nil || req.Params == nil || req.Params.Arguments == nil {
		return map[string]any{}
	}
	return req.Params.Arguments
}
