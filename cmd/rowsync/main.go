// Command rowsync copies changed rows from a source table into a
// field-mapped destination table.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/rowsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "rowsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
