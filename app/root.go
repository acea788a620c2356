// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "prefstore",
	Short: "prefstore is a settings-persistence service",
	Long: `prefstore keeps a structured set of typed settings consistent between
an in-memory working copy and a slow, quota-limited key-value store,
serializing concurrent writes through a single operation queue.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
