// Command lavalog follows LAVA job logs and turns them into GitLab CI
// transcripts.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/lavalog/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
