package cmd

import (
	"fmt"

	"github.com/Shivansh-Atwal/trackstack/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		gdb, err := db.ConnectGormDB(cfg)
		if err != nil {
			return err
		}
		defer db.CloseGormDB(gdb)

		if err := db.AutoMigrateModels(gdb); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables in %s\n", len(db.Models), cfg.DBName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
