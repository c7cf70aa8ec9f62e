package adapter

import "strings"

var shellPrograms = map[string]bool{
	"sh": true, "bash": true, "zsh": true,
	"/bin/sh": true, "/bin/bash": true, "/bin/zsh": true,
}

// maybeAppendShellRedirect finds a `-c <script>` shell invocation and
// appends "2>&1" to the script so stderr is captured alongside stdout by
// the caller, unless the script already redirects it.
func maybeAppendShellRedirect(program string, args []string) {
	idx := shellScriptIndex(program, args)
	if idx < 0 {
		return
	}
	args[idx] = ensureShellRedirect(args[idx])
}

func shellScriptIndex(program string, args []string) int {
	if !shellPrograms[program] {
		return -1
	}
	for i, a := range args {
		if a == "-c" {
			scriptIdx := i + 1
			if scriptIdx < len(args) {
				return scriptIdx
			}
			return -1
		}
	}
	return -1
}

func ensureShellRedirect(script string) string {
	if strings.HasSuffix(strings.TrimRight(script, " \t\n"), "2>&1") {
		return script
	}
	if script != "" && !isTrailingSpace(script[len(script)-1]) {
		script += " "
	}
	return script + "2>&1"
}

func isTrailingSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
