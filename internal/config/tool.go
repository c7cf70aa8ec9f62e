// Package config loads the declarative tool documents that describe which
// CLI programs this server exposes as MCP tools, and the server/bridge
// process configuration that governs sandboxing, pool sizing, and binding.
package config

// OptionType is the declared value type of a subcommand option.
type OptionType string

const (
	OptionBoolean OptionType = "boolean"
	OptionString  OptionType = "string"
	OptionInteger OptionType = "integer"
	OptionArray   OptionType = "array"
)

// OptionConfig declares one flag a subcommand accepts.
type OptionConfig struct {
	Name        string     `json:"name"`
	Type        OptionType `json:"type"`
	Alias       string     `json:"alias,omitempty"`
	Default     any        `json:"default,omitempty"`
	Description string     `json:"description,omitempty"`
	FileArg     bool       `json:"file_arg,omitempty"`
	// ShortFlag, when set alongside Alias, tells the adapter to emit the
	// wrapped command's short flag form ("-alias") instead of "--name".
	ShortFlag bool `json:"short_flag,omitempty"`
}

// PositionalArg declares one positional argument a subcommand accepts, in
// the order it must appear on the command line.
type PositionalArg struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// SequenceStep is one call in a subcommand's nested sequence-tool chain.
type SequenceStep struct {
	Tool       string         `json:"tool"`
	Subcommand string         `json:"subcommand,omitempty"`
	Args       map[string]any `json:"args,omitempty"`
}

// SubcommandConfig declares one invokable subcommand of a tool.
type SubcommandConfig struct {
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Synchronous    bool            `json:"synchronous,omitempty"`
	Options        []OptionConfig  `json:"options,omitempty"`
	PositionalArgs []PositionalArg `json:"positional_args,omitempty"`
	HardcodedArgs  []string        `json:"hardcoded_args,omitempty"`
	Sequence       []SequenceStep  `json:"sequence,omitempty"`
	Guidance       string          `json:"guidance,omitempty"`
	TimeoutSeconds *int            `json:"timeout_seconds,omitempty"`
}

// ToolConfig is one tool document: the program it wraps and the
// subcommands it advertises.
type ToolConfig struct {
	Name           string             `json:"name"`
	Description    string             `json:"description,omitempty"`
	Command        string             `json:"command"`
	Enabled        bool               `json:"enabled"`
	TimeoutSeconds *int               `json:"timeout_seconds,omitempty"`
	Subcommands    []SubcommandConfig `json:"subcommands,omitempty"`
	GuidanceKey    string             `json:"guidance_key,omitempty"`
}

// Subcommand returns the named subcommand, or nil if tc declares none by
// that name.
func (tc *ToolConfig) Subcommand(name string) *SubcommandConfig {
	for i := range tc.Subcommands {
		if tc.Subcommands[i].Name == name {
			return &tc.Subcommands[i]
		}
	}
	return nil
}

// Option returns the named option (matched against Name or Alias), or nil.
func (sc *SubcommandConfig) Option(name string) *OptionConfig {
	for i := range sc.Options {
		if sc.Options[i].Name == name || (sc.Options[i].Alias != "" && sc.Options[i].Alias == name) {
			return &sc.Options[i]
		}
	}
	return nil
}
