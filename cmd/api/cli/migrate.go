package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"doclocker/internal/config"
	"doclocker/internal/database"
	"doclocker/internal/database/migration"
	"doclocker/internal/logging"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  "Create the documents, versions, QR binding and scan log tables if they do not exist yet, then exit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg := config.Load()
			log, closeLog := logging.New(cfg.Log, time.Local)
			defer closeLog()

			db, err := database.NewPostgres(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			return migration.EnsureMigrated(ctx, db, log, cfg.Database.Host)
		},
	}
}
