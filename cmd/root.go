package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "applications",
	Short: "Study-abroad applications service",
	Long:  `Lifecycle engine for study-abroad applications: creation with policy snapshot, document attachment, status transitions and the audit trail.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
