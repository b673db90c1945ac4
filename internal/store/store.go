package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/samber/oops"

	"github.com/agendaweb/agenda/internal/database"
)

// DefaultQueryTimeout bounds a single statement when none is configured.
const DefaultQueryTimeout = 5 * time.Second

// sqliteTimeLayout has a fixed-width fraction so stored values compare
// correctly as text.
const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store handles all database operations. A Store obtained inside WithinTx is
// bound to that transaction.
type Store struct {
	db           *database.DB
	q            querier
	inTx         bool
	queryTimeout time.Duration
	now          func() time.Time
}

// New creates a new store instance
func New(db *database.DB, queryTimeout time.Duration) *Store {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &Store{
		db:           db,
		q:            db,
		queryTimeout: queryTimeout,
		now:          time.Now,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}

// timeArg converts t into the value bound for a timestamp column. SQLite has
// no native timestamp type so times are stored as UTC text.
func (s *Store) timeArg(t time.Time) any {
	t = t.UTC()
	if s.db.Dialect == database.SQLite {
		return t.Format(sqliteTimeLayout)
	}
	return t
}

// inTransaction runs fn with a Store bound to one transaction. Nested calls
// reuse the outer transaction.
func (s *Store) inTransaction(ctx context.Context, fn func(tx *Store) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return oops.Code("STORE_TX_FAILED").With("operation", "begin").Wrap(err)
	}

	txStore := &Store{
		db:           s.db,
		q:            tx,
		inTx:         true,
		queryTimeout: s.queryTimeout,
		now:          s.now,
	}

	if err := fn(txStore); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return oops.Code("STORE_TX_FAILED").With("operation", "commit").Wrap(err)
	}
	return nil
}
