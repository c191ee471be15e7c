package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/edgard/queuebot/internal/config"
	"github.com/edgard/queuebot/internal/database"
	"github.com/edgard/queuebot/internal/logger"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Long: `Apply pending schema migrations to the database. With --db the
configuration file is not read.`,
		Args: cobra.NoArgs,
		RunE: runMigrate,
	}
	cmd.Flags().String("db", "", "database path, overrides database.path")
	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	opts := database.Options{}
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		cfg, err := config.LoadConfig(configPath(cmd))
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			return err
		}
		logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
		dbPath = cfg.Database.Path
		opts = database.Options{MaxOpenConns: cfg.Database.MaxOpenConns, BusyTimeout: cfg.Database.BusyTimeout}
	}

	db, err := database.NewDB(dbPath, opts)
	if err != nil {
		slog.Error("Failed to migrate database", "path", dbPath, "error", err)
		return err
	}
	database.CloseDB(db)
	return nil
}
