package store

import (
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/agendaweb/agenda/internal/auth"
)

var (
	// ErrNotFound is the same sentinel the auth package uses, so callers can
	// check either.
	ErrNotFound = auth.ErrNotFound

	// ErrConflict is returned when a unique value is already taken.
	ErrConflict = errors.New("already exists")

	// ErrUnknownTag is returned when a contact references a missing tag.
	ErrUnknownTag = errors.New("unknown tag")
)

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}
