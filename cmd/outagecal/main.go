// Command outagecal reconciles scraped power outage schedules into a durable
// event ledger.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/outagecal/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		// Command errors are already reported in the selected format;
		// anything else comes from cobra (unknown flag, bad arguments).
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
	}
	os.Exit(cli.GetExitCode(err))
}
