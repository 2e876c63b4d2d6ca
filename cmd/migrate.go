package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"amici-chat/internal/config"
	"amici-chat/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store != config.StorePostgres {
			return fmt.Errorf("migrate needs the postgres store, got %q", cfg.Store)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		database, err := db.Connect(ctx, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.Migrate(ctx, database); err != nil {
			return err
		}
		log.Info(ctx, "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
