package main

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "raftnode",
	Short: "Run or inspect a single Raft consensus node",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "raftnode.toml", "path to the node's TOML config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
