// Command clientcore tracks clients through a sales pipeline from the
// terminal or over HTTP.
package main

import (
	"fmt"
	"os"

	"clientcore/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
