package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/store"
)

// NewUserCmd creates the user subcommand. Accounts are provisioned by an
// operator; the API has no sign-up route.
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(email)
			if err := auth.ValidateEmail(email); err != nil {
				return err
			}
			if err := auth.ValidatePassword(password); err != nil {
				return err
			}

			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			db, err := openDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			hash, err := auth.NewBcryptHasher(cfg.Auth.BcryptCost).Hash(password)
			if err != nil {
				return err
			}
			user, err := store.New(db, cfg.Database.QueryTimeout).CreateUser(cmd.Context(), email, hash)
			if err != nil {
				return err
			}

			cmd.Printf("Created user %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")
	return cmd
}
