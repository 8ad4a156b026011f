package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set by the release pipeline; "dev" covers local builds.
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the raftnode build version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}
