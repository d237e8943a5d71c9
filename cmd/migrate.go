package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Dosada05/fractal-system/db"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Run: func(cmd *cobra.Command, args []string) {
			logger := commonRun()
			cfg := loadConfig(logger)

			ctx := context.Background()
			dbConn, err := db.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
			if err != nil {
				logger.Error("failed to connect to database", slog.Any("error", err))
				os.Exit(1)
			}
			defer dbConn.Close()

			if err := db.Migrate(ctx, dbConn, logger); err != nil {
				logger.Error("migration failed", slog.Any("error", err))
				os.Exit(1)
			}
			logger.Info("migrations applied")
		},
	}
}
