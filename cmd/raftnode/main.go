// Command raftnode runs a single consensus node as a standalone process,
// wiring the raft core to the TCP reference transport and a TOML config
// file. It exists to make the repository runnable end to end; the core
// package has no dependency on it.
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
