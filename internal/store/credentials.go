package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/agendaweb/agenda/internal/auth"
	"github.com/agendaweb/agenda/internal/database"
)

var _ auth.CredentialStore = (*Store)(nil)

// CreateUser inserts a user with an already hashed password. A taken email
// returns ErrConflict.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (*auth.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	user := &auth.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.q.ExecContext(ctx,
		s.rebind("INSERT INTO users (id, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)"),
		user.ID, user.Email, user.PasswordHash, s.timeArg(now), s.timeArg(now),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, oops.Code("STORE_USER_EXISTS").With("email", email).Wrap(ErrConflict)
		}
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "create user").Wrap(err)
	}
	return user, nil
}

// FindUserByEmail matches the email exactly.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUser(ctx, "email", email)
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*auth.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		// Postgres rejects malformed UUIDs outright; treat them as a miss.
		return nil, ErrNotFound
	}
	return s.findUser(ctx, "id", id)
}

func (s *Store) findUser(ctx context.Context, column, value string) (*auth.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "SELECT id, email, password_hash, created_at, updated_at FROM users WHERE " + column + " = ?"
	user := &auth.User{}
	err := s.q.QueryRowContext(ctx, s.rebind(query), value).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "find user by "+column).Wrap(err)
	}
	return user, nil
}

// RotatePassword overwrites the password hash and bumps updated_at.
func (s *Store) RotatePassword(ctx context.Context, userID, newHash string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.q.ExecContext(ctx,
		s.rebind("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?"),
		newHash, s.timeArg(s.now()), userID,
	)
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").With("operation", "rotate password").With("user_id", userID).Wrap(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertResetToken stores the token hash for userID, replacing any earlier
// one in the same statement.
func (s *Store) UpsertResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, s.rebind(`
		INSERT INTO password_resets (user_id, token_hash, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			token_hash = excluded.token_hash,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`),
		userID, tokenHash, s.timeArg(expiresAt), s.timeArg(s.now()),
	)
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").With("operation", "upsert reset token").With("user_id", userID).Wrap(err)
	}
	return nil
}

// FindResetTokenIfValid returns the owner of an unexpired token. On Postgres
// inside a transaction the row stays locked until commit.
func (s *Store) FindResetTokenIfValid(ctx context.Context, tokenHash string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "SELECT user_id FROM password_resets WHERE token_hash = ? AND expires_at > ?"
	if s.inTx && s.db.Dialect == database.Postgres {
		query += " FOR UPDATE"
	}

	var userID string
	err := s.q.QueryRowContext(ctx, s.rebind(query), tokenHash, s.timeArg(s.now())).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", oops.Code("STORE_QUERY_FAILED").With("operation", "find reset token").Wrap(err)
	}
	return userID, nil
}

func (s *Store) DeleteResetToken(ctx context.Context, userID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.q.ExecContext(ctx, s.rebind("DELETE FROM password_resets WHERE user_id = ?"), userID)
	if err != nil {
		return oops.Code("STORE_QUERY_FAILED").With("operation", "delete reset token").With("user_id", userID).Wrap(err)
	}
	return nil
}

func (s *Store) DeleteExpiredResetTokens(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.q.ExecContext(ctx,
		s.rebind("DELETE FROM password_resets WHERE expires_at <= ?"),
		s.timeArg(s.now()),
	)
	if err != nil {
		return 0, oops.Code("STORE_QUERY_FAILED").With("operation", "delete expired reset tokens").Wrap(err)
	}
	return res.RowsAffected()
}

// WithinTx implements auth.CredentialStore.
func (s *Store) WithinTx(ctx context.Context, fn func(auth.CredentialStore) error) error {
	return s.inTransaction(ctx, func(tx *Store) error {
		return fn(tx)
	})
}
