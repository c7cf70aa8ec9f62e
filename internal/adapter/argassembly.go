package adapter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ahma-mcp/ahma-mcp/internal/config"
)

// buildArgs assembles the final argument list for one subcommand
// invocation, deterministically:
//
//  1. the subcommand's hardcoded args, in declaration order;
//  2. for each declared option present in callerArgs, in the option's
//     declaration order: the flag ("--name", or "-alias" when the option
//     declares short_flag), then its value (booleans emit only the flag
//     when true and nothing when false; arrays repeat flag+value per
//     element); a file_arg value containing a newline is written to a
//     temp file and the value substituted with its path;
//  3. the subcommand's declared positional arguments, in declaration
//     order, pulled from callerArgs by name.
func buildArgs(sc *config.SubcommandConfig, callerArgs map[string]any, tmp *TempFileManager) ([]string, error) {
	var out []string

	out = append(out, sc.HardcodedArgs...)

	for _, opt := range sc.Options {
		val, present := callerArgs[opt.Name]
		if !present && opt.Alias != "" {
			val, present = callerArgs[opt.Alias]
		}
		if !present {
			continue
		}

		flag := "--" + opt.Name
		if opt.ShortFlag && opt.Alias != "" {
			flag = "-" + opt.Alias
		}
		emitted, err := emitOption(flag, opt, val, tmp)
		if err != nil {
			return nil, fmt.Errorf("adapter: option %q: %w", opt.Name, err)
		}
		out = append(out, emitted...)
	}

	for _, pos := range sc.PositionalArgs {
		val, present := callerArgs[pos.Name]
		if !present {
			if pos.Required {
				return nil, fmt.Errorf("adapter: missing required positional argument %q", pos.Name)
			}
			continue
		}
		out = append(out, fmt.Sprint(val))
	}

	return out, nil
}

func emitOption(flag string, opt config.OptionConfig, val any, tmp *TempFileManager) ([]string, error) {
	switch opt.Type {
	case config.OptionBoolean:
		b, _ := val.(bool)
		if b {
			return []string{flag}, nil
		}
		return nil, nil

	case config.OptionArray:
		items, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("expected array value, got %T", val)
		}
		var out []string
		for _, item := range items {
			s, err := stringifyOptionValue(item, opt, tmp)
			if err != nil {
				return nil, err
			}
			out = append(out, flag, s)
		}
		return out, nil

	default:
		s, err := stringifyOptionValue(val, opt, tmp)
		if err != nil {
			return nil, err
		}
		return []string{flag, s}, nil
	}
}

func stringifyOptionValue(val any, opt config.OptionConfig, tmp *TempFileManager) (string, error) {
	s := scalarToString(val)
	if opt.FileArg && strings.Contains(s, "\n") {
		path, err := tmp.CreateTempFileWithContent(s)
		if err != nil {
			return "", err
		}
		return path, nil
	}
	return s, nil
}

func scalarToString(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
