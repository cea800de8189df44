// Package cli implements boltctl, the command-line companion of the builder
// server.
package cli

import (
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "boltctl",
		Short: "Turn model artifacts into runnable projects from the terminal",
	}

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(
		newParseCmd(),
		newBuildCmd(),
	)

	return rootCmd
}
