// Command ahma-shellworker is the worker-side half of the shell pool
// protocol: it is spawned by the pool, reads line-delimited JSON requests
// from stdin, and writes line-delimited JSON responses to stdout until
// stdin closes.
package main

import (
	"fmt"
	"os"

	"github.com/ahma-mcp/ahma-mcp/internal/shellpool"
)

func main() {
	if err := shellpool.RunBootstrapLoop(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "ahma-shellworker:", err)
		os.Exit(1)
	}
}
