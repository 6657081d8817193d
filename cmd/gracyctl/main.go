// Command gracyctl inspects gracy declarations and replay fixtures from the
// shell: validating a YAML config, listing what a replay store has
// recorded, and printing a metrics report for a recorded run.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
