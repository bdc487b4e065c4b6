// Command donedex is the offline-first inspection sync engine CLI.
//
// It edits inspection reports against a local draft cache, queues
// response mutations while offline, and replays them to the remote
// report service when connectivity returns.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
