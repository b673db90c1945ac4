package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"path"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ResetConfig tunes the password reset flow.
type ResetConfig struct {
	// BaseURL is the public frontend address the recovery link points at.
	BaseURL string

	// TokenTTL defaults to ResetTokenTTL.
	TokenTTL time.Duration

	// MailTimeout bounds a single send. Sends are never retried.
	MailTimeout time.Duration

	// ConfirmRetries is how many times a failed rotate-and-consume
	// transaction is retried.
	ConfirmRetries uint64
}

// PasswordResetService runs the forgot-password and reset-password flows.
type PasswordResetService struct {
	store   CredentialStore
	hasher  PasswordHasher
	mailer  Mailer
	baseURL *url.URL
	cfg     ResetConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewPasswordResetService creates a PasswordResetService.
func NewPasswordResetService(
	store CredentialStore,
	hasher PasswordHasher,
	mailer Mailer,
	cfg ResetConfig,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	switch {
	case store == nil:
		return nil, oops.Code("RESET_CONFIG_INVALID").Errorf("credential store is required")
	case hasher == nil:
		return nil, oops.Code("RESET_CONFIG_INVALID").Errorf("password hasher is required")
	case mailer == nil:
		return nil, oops.Code("RESET_CONFIG_INVALID").Errorf("mailer is required")
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, oops.Code("RESET_CONFIG_INVALID").
			With("base_url", cfg.BaseURL).
			Errorf("base URL must be an absolute URL")
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = ResetTokenTTL
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PasswordResetService{
		store:   store,
		hasher:  hasher,
		mailer:  mailer,
		baseURL: base,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// RequestReset issues a reset token for the account registered under email
// and mails the recovery link. An unknown email returns nil without doing
// anything, so callers cannot tell the two apart.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	if email == "" {
		return missingField("email")
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			resetRequests.WithLabelValues("unknown_email").Inc()
			return nil
		}
		resetRequests.WithLabelValues("error").Inc()
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	token, hash, err := GenerateResetToken()
	if err != nil {
		resetRequests.WithLabelValues("error").Inc()
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	expiresAt := s.now().Add(s.cfg.TokenTTL).UTC()
	if err := s.store.UpsertResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		resetRequests.WithLabelValues("error").Inc()
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "upsert reset token").
			With("user_id", user.ID).
			Wrap(err)
	}

	// The token is committed before mailing; a failed send leaves it valid
	// until it expires and the user may simply ask again.
	mailCtx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
	defer cancel()

	if err := s.mailer.SendPasswordReset(mailCtx, user.Email, s.resetURL(token)); err != nil {
		resetRequests.WithLabelValues("mail_error").Inc()
		return oops.Code("RESET_MAIL_FAILED").
			With("operation", "send reset mail").
			With("user_id", user.ID).
			Wrap(err)
	}

	resetRequests.WithLabelValues("issued").Inc()
	s.logger.InfoContext(ctx, "password reset issued", "user_id", user.ID, "expires_at", expiresAt)
	return nil
}

// ConfirmReset consumes a reset token and sets a new password. Wrong, used,
// superseded and expired tokens all fail with ErrInvalidOrExpiredToken.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return missingField("token")
	}
	if newPassword == "" {
		return missingField("newPassword")
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	tokenHash := HashResetToken(token)

	var userID string
	backoff := retry.WithMaxRetries(s.cfg.ConfirmRetries, retry.NewExponential(50*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.store.WithinTx(ctx, func(tx CredentialStore) error {
			id, err := tx.FindResetTokenIfValid(ctx, tokenHash)
			if err != nil {
				return err
			}
			if err := tx.RotatePassword(ctx, id, newHash); err != nil {
				return oops.Code("RESET_CONFIRM_FAILED").
					With("operation", "rotate password").
					With("user_id", id).
					Wrap(err)
			}
			if err := tx.DeleteResetToken(ctx, id); err != nil {
				return oops.Code("RESET_CONFIRM_FAILED").
					With("operation", "delete reset token").
					With("user_id", id).
					Wrap(err)
			}
			userID = id
			return nil
		})
		if err == nil || errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return err
		}
		s.logger.WarnContext(ctx, "reset confirmation failed, retrying", "error", err)
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		resetConfirmations.WithLabelValues("success").Inc()
		s.logger.InfoContext(ctx, "password reset completed", "user_id", userID)
		return nil
	case errors.Is(err, ErrNotFound):
		resetConfirmations.WithLabelValues("invalid").Inc()
		return ErrInvalidOrExpiredToken
	default:
		resetConfirmations.WithLabelValues("error").Inc()
		return oops.Code("RESET_CONFIRM_FAILED").Wrap(err)
	}
}

// RunCleanup deletes expired reset tokens every interval until ctx is done.
// Expiry is enforced at lookup time, so this only reclaims space.
func (s *PasswordResetService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpiredResetTokens(ctx)
			if err != nil {
				s.logger.ErrorContext(ctx, "cleaning up expired reset tokens", "error", err)
				continue
			}
			if n > 0 {
				expiredResetTokensSwept.Add(float64(n))
				s.logger.InfoContext(ctx, "expired reset tokens removed", "count", n)
			}
		}
	}
}

func (s *PasswordResetService) resetURL(token string) string {
	u := *s.baseURL
	u.Path = path.Join("/", u.Path, "reset-password")
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}
