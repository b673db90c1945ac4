package auth

import (
	"context"
	"time"
)

// User is a stored account. Password holds the bcrypt hash and is never
// serialised.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResetToken is a pending password reset. At most one exists per user.
type ResetToken struct {
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CredentialStore persists users and reset tokens.
type CredentialStore interface {
	// FindUserByEmail returns ErrNotFound when no user has the exact email.
	FindUserByEmail(ctx context.Context, email string) (*User, error)

	// FindUserByID returns ErrNotFound when the id is unknown.
	FindUserByID(ctx context.Context, id string) (*User, error)

	// UpsertResetToken inserts or replaces the reset token for userID in one
	// atomic statement. The later call wins.
	UpsertResetToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error

	// FindResetTokenIfValid returns the owner of tokenHash when its expiry is
	// strictly in the future, and ErrNotFound otherwise.
	FindResetTokenIfValid(ctx context.Context, tokenHash string) (string, error)

	// RotatePassword overwrites the stored hash for userID.
	RotatePassword(ctx context.Context, userID, newHash string) error

	// DeleteResetToken removes the reset token for userID. Deleting a missing
	// token is not an error.
	DeleteResetToken(ctx context.Context, userID string) error

	// DeleteExpiredResetTokens removes expired rows and returns how many.
	DeleteExpiredResetTokens(ctx context.Context) (int64, error)

	// WithinTx runs fn against a store bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(CredentialStore) error) error
}

// Mailer delivers the password recovery message.
type Mailer interface {
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}
