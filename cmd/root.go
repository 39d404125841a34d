package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scheduling",
	Short: "Foundry production scheduling service",
	Long:  `Dispatches pending jobs to production lines and plans mold production against daily capacity`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
