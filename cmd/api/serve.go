package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agendaweb/agenda/internal/api"
	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/config"
	"github.com/agendaweb/agenda/internal/database"
	"github.com/agendaweb/agenda/internal/mail"
	"github.com/agendaweb/agenda/internal/store"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API. Pending migrations are applied first and the
process runs until it receives SIGINT or SIGTERM.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	logger.Info("starting agenda api", "version", version, "database", cfg.Database.Type)

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	server, err := initializeAPI(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// initializeAPI wires the services behind the HTTP API.
func initializeAPI(ctx context.Context, cfg *config.Config, db *database.DB, logger *slog.Logger) (*api.Api, error) {
	st := store.New(db, cfg.Database.QueryTimeout)
	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, auth.SessionTokenTTL)
	if err != nil {
		return nil, err
	}
	authService, err := auth.NewService(st, hasher, tokens, logger)
	if err != nil {
		return nil, err
	}

	mailer, err := mail.New(cfg.SMTP, cfg.Auth.ResetTokenTTL, logger)
	if err != nil {
		return nil, err
	}
	if v, ok := mailer.(interface{ Verify(context.Context) error }); ok {
		verifyCtx, cancel := context.WithTimeout(ctx, cfg.SMTP.Timeout)
		defer cancel()
		// An unreachable relay only breaks recovery mails, not the API.
		if err := v.Verify(verifyCtx); err != nil {
			logger.Warn("smtp relay not reachable", "host", cfg.SMTP.Host, "error", err)
		}
	}

	resets, err := auth.NewPasswordResetService(st, hasher, mailer, auth.ResetConfig{
		BaseURL:        cfg.BaseURL,
		TokenTTL:       cfg.Auth.ResetTokenTTL,
		MailTimeout:    cfg.SMTP.Timeout,
		ConfirmRetries: cfg.Auth.ConfirmRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	return api.NewApi(cfg, api.Deps{
		Auth:     authService,
		Resets:   resets,
		Tokens:   tokens,
		Contacts: st,
		Logger:   logger,
		Ready:    db.PingContext,
	})
}
