package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"threadhub/internal/config"
	"threadhub/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			database, err := db.Open(cfg)
			if err != nil {
				return fmt.Errorf("db open: %w", err)
			}
			defer database.Close()
			if err := db.Migrate(database); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (driver=%s)\n", cfg.DBDriver)
			return nil
		},
	}
}
