package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/agendaweb/agenda/internal/config"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB is a connection pool together with the dialect it speaks.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the configured database and pings it, retrying with a
// constant delay while the server is unreachable.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		conn    *sql.DB
		dialect Dialect
		err     error
	)
	switch cfg.Type {
	case "postgres":
		dialect = Postgres
		conn, err = openPostgres(cfg)
	case "sqlite", "":
		dialect = SQLite
		conn, err = openSQLite(cfg)
	default:
		return nil, oops.Code("DB_CONFIG_INVALID").
			With("type", cfg.Type).
			Errorf("unsupported database type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	attempt := 0
	backoff := retry.WithMaxRetries(cfg.MaxRetries, retry.NewConstant(delay))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := conn.PingContext(ctx); err != nil {
			logger.WarnContext(ctx, "database not reachable",
				"dialect", dialect,
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		conn.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("dialect", dialect).
			With("attempts", attempt).
			Wrap(err)
	}

	logger.InfoContext(ctx, "database connected", "dialect", dialect)
	return &DB{DB: conn, Dialect: dialect}, nil
}

func openPostgres(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("dialect", Postgres).Wrap(err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if cfg.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// openSQLite opens the database file with foreign keys on, WAL journaling and
// transactions that take the write lock at BEGIN. The last one makes a
// read-then-write transaction behave like SELECT ... FOR UPDATE.
func openSQLite(cfg config.DatabaseConfig) (*sql.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "agenda.db"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, oops.Code("DB_CONNECT_FAILED").
				With("path", path).
				Wrapf(err, "creating data directory")
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("dialect", SQLite).Wrap(err)
	}
	// One writer at a time; readers share the same connection.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (db *DB) Rebind(query string) string {
	return Rebind(db.Dialect, query)
}

// Rebind rewrites ? placeholders to $1, $2, ... for Postgres and returns the
// query unchanged otherwise. Queries must not contain literal question marks.
func Rebind(dialect Dialect, query string) string {
	if dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
