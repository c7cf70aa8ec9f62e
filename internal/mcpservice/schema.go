// Package mcpservice implements the MCP server role: tool advertisement,
// call routing to the adapter, the synthetic status/await/cancel control
// tools, and sequence-tool orchestration.
package mcpservice

import "github.com/ahma-mcp/ahma-mcp/internal/config"

// qualifiedName builds the flat "<tool>_<subcommand>" name this server
// advertises for one subcommand.
func qualifiedName(toolName, subcommandName string) string {
	if subcommandName == "" {
		return toolName
	}
	return toolName + "_" + subcommandName
}

// inputSchema builds a JSON Schema object describing a subcommand's
// accepted arguments from its declared options and positionals.
func inputSchema(sc *config.SubcommandConfig) map[string]any {
	properties := map[string]any{}
	var required []string

	for _, opt := range sc.Options {
		properties[opt.Name] = optionSchema(opt)
	}
	for _, pos := range sc.PositionalArgs {
		properties[pos.Name] = map[string]any{
			"type":        "string",
			"description": pos.Description,
		}
		if pos.Required {
			required = append(required, pos.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func optionSchema(opt config.OptionConfig) map[string]any {
	s := map[string]any{"description": opt.Description}
	switch opt.Type {
	case config.OptionBoolean:
		s["type"] = "boolean"
	case config.OptionInteger:
		s["type"] = "integer"
	case config.OptionArray:
		s["type"] = "array"
		s["items"] = map[string]any{"type": "string"}
	default:
		s["type"] = "string"
	}
	if opt.Default != nil {
		s["default"] = opt.Default
	}
	return s
}
