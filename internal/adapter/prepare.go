package adapter

import (
	"strings"

	"github.com/ahma-mcp/ahma-mcp/internal/config"
)

// PrepareCommandAndArgs turns a tool's configured command string plus a
// caller's argument mapping into a program name and final argument list,
// following the deterministic assembly order: split the command string
// into program and leading args, append the subcommand's hardcoded args,
// emit declared options present in callerArgs, append positional
// arguments, substitute file_arg values that contain a newline with a
// temp file path, then append a shell redirect if program is a shell
// invoked with "-c".
func PrepareCommandAndArgs(tool *config.ToolConfig, subcommandName string, callerArgs map[string]any, tmp *TempFileManager) (string, []string, error) {
	parts := strings.Fields(tool.Command)
	if len(parts) == 0 {
		return "", nil, &Error{Kind: EmptyCommand, Tool: tool.Name}
	}
	program := parts[0]
	finalArgs := append([]string(nil), parts[1:]...)

	var sc *config.SubcommandConfig
	if subcommandName != "" {
		sc = tool.Subcommand(subcommandName)
		if sc == nil {
			return "", nil, &Error{Kind: UnknownSubcommand, Tool: tool.Name, Sub: subcommandName}
		}
	}

	if sc != nil {
		assembled, err := buildArgs(sc, callerArgs, tmp)
		if err != nil {
			return "", nil, &Error{Kind: ArgAssemblyFailed, Tool: tool.Name, Sub: subcommandName, Err: err}
		}
		finalArgs = append(finalArgs, assembled...)
	}

	maybeAppendShellRedirect(program, finalArgs)

	return program, finalArgs, nil
}
