// Command listsync mirrors Kubernetes collections into filtered,
// paginated, auto-refreshing views.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/listsync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
