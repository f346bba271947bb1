package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rehome",
	Short: "Restore instance backups under a new database identity",
	Long: `Rehome restores a backed-up application instance (PostgreSQL dump plus
filestore tree) onto this host, rehoming it under a brand-new database
role, name and password unrelated to the ones that produced the backup.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}
