package main

import (
	"github.com/spf13/cobra"

	"github.com/agendaweb/agenda/internal/database"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending schema migrations to the configured database.`,
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	db, err := openDatabase(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := database.AppliedMigrations(cmd.Context(), db)
	if err != nil {
		return err
	}
	cmd.Printf("Schema at version %d (%d migrations applied)\n", latest(applied), len(applied))
	return nil
}

func latest(applied map[int]bool) int {
	v := 0
	for n := range applied {
		v = max(v, n)
	}
	return v
}
