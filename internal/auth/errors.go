package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by a CredentialStore when a lookup misses.
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned by Login for an unknown email or a
	// wrong password. The two cases are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidOrExpiredToken covers wrong, already used, superseded and
	// expired reset tokens alike.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

	// ErrUnauthenticated is returned when a session token is missing or fails
	// verification.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrValidation marks missing or malformed request fields.
	ErrValidation = errors.New("validation failed")
)

var (
	ErrTokenExpired = fmt.Errorf("%w: token has expired", ErrUnauthenticated)
	ErrTokenInvalid = fmt.Errorf("%w: invalid token", ErrUnauthenticated)
)

// ValidationError names the offending field and wraps ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func missingField(field string) error {
	return &ValidationError{Field: field, Reason: "is required"}
}
