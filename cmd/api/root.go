package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/agendaweb/agenda/internal/config"
	"github.com/agendaweb/agenda/internal/database"
	"github.com/agendaweb/agenda/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// configInit is swapped out in tests.
var configInit = config.Init

// NewRootCmd creates the root command for the Agenda CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agenda",
		Short:         "Agenda - personal contact book API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $CONFIG_DIR/app.yml)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())

	return cmd
}

// setup loads the configuration and builds the process logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := configInit(configFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openDatabase connects and brings the schema up to date.
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
