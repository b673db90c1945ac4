package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Service authenticates users by email and password.
type Service struct {
	store  CredentialStore
	hasher PasswordHasher
	tokens *TokenIssuer
	logger *slog.Logger

	// dummyHash is verified against when the email is unknown so that both
	// failure paths pay for one bcrypt comparison.
	dummyHash string
}

// NewService creates a Service. All dependencies are required.
func NewService(store CredentialStore, hasher PasswordHasher, tokens *TokenIssuer, logger *slog.Logger) (*Service, error) {
	switch {
	case store == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("credential store is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("password hasher is required")
	case tokens == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token issuer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, oops.Code("AUTH_CONFIG_INVALID").With("operation", "dummy hash").Wrap(err)
	}

	return &Service{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Login verifies the credentials and returns a fresh session token. An unknown
// email and a wrong password both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	if email == "" {
		return "", missingField("email")
	}
	if password == "" {
		return "", missingField("password")
	}

	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		loginAttempts.WithLabelValues("error").Inc()
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "find user by email").
			Wrap(err)
	}

	if user == nil {
		s.hasher.Verify(password, s.dummyHash)
		loginAttempts.WithLabelValues("invalid").Inc()
		return "", ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		loginAttempts.WithLabelValues("invalid").Inc()
		s.logger.InfoContext(ctx, "login rejected", "user_id", user.ID)
		return "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		loginAttempts.WithLabelValues("error").Inc()
		return "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue session token").
			With("user_id", user.ID).
			Wrap(err)
	}

	loginAttempts.WithLabelValues("success").Inc()
	s.logger.InfoContext(ctx, "login succeeded", "user_id", user.ID)
	return token, nil
}
