// Command fedisent is the operator CLI: queue inspection, cache
// invalidation, index schema management, and configuration checks.
package main

import (
	"fmt"
	"os"

	"github.com/turtacn/FediSent-Analytics/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
