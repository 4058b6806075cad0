// volition is the personal agent runtime CLI: chat through the agent
// loop, drive the desire lifecycle, run background agents, inspect the
// queue, and serve MCP over stdio.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
