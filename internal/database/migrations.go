package database

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/oops"
)

// Migration is one forward-only schema step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all migrations for the dialect in version order.
func GetMigrations(dialect Dialect) []Migration {
	if dialect == Postgres {
		return postgresMigrations
	}
	return sqliteMigrations
}

var postgresMigrations = []Migration{
	{
		Version:     1,
		Description: "Create users table",
		SQL: `CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
	},
	{
		Version:     2,
		Description: "Create password_resets table",
		SQL: `CREATE TABLE IF NOT EXISTS password_resets (
			user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			token_hash CHAR(64) UNIQUE NOT NULL,
			expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_password_resets_expires_at ON password_resets(expires_at)`,
	},
	{
		Version:     3,
		Description: "Create contacts and tags tables",
		SQL: `CREATE TABLE IF NOT EXISTS contacts (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			phone_landline VARCHAR(50) NOT NULL DEFAULT '',
			phone_mobile VARCHAR(50) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS tags (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) UNIQUE NOT NULL
		);
		CREATE TABLE IF NOT EXISTS contact_tags (
			contact_id BIGINT NOT NULL REFERENCES contacts(id) ON DELETE CASCADE,
			tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
			PRIMARY KEY (contact_id, tag_id)
		);
		CREATE INDEX IF NOT EXISTS idx_contact_tags_tag_id ON contact_tags(tag_id)`,
	},
}

var sqliteMigrations = []Migration{
	{
		Version:     1,
		Description: "Create users table",
		SQL: `CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	},
	{
		Version:     2,
		Description: "Create password_resets table",
		SQL: `CREATE TABLE IF NOT EXISTS password_resets (
			user_id TEXT PRIMARY KEY,
			token_hash TEXT UNIQUE NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_password_resets_expires_at ON password_resets(expires_at)`,
	},
	{
		Version:     3,
		Description: "Create contacts and tags tables",
		SQL: `CREATE TABLE IF NOT EXISTS contacts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			phone_landline TEXT NOT NULL DEFAULT '',
			phone_mobile TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS tags (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT UNIQUE NOT NULL
		);
		CREATE TABLE IF NOT EXISTS contact_tags (
			contact_id INTEGER NOT NULL,
			tag_id INTEGER NOT NULL,
			PRIMARY KEY (contact_id, tag_id),
			FOREIGN KEY (contact_id) REFERENCES contacts(id) ON DELETE CASCADE,
			FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
		);
		CREATE INDEX IF NOT EXISTS idx_contact_tags_tag_id ON contact_tags(tag_id)`,
	},
}

func createMigrationsTable(ctx context.Context, db *DB) error {
	query := `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if db.Dialect == Postgres {
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`
	}
	_, err := db.ExecContext(ctx, query)
	return err
}

// AppliedMigrations returns the set of versions recorded in schema_migrations.
func AppliedMigrations(ctx context.Context, db *DB) (map[int]bool, error) {
	applied := make(map[int]bool)

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// RunMigrations applies every pending migration, each in its own
// transaction together with its schema_migrations record.
func RunMigrations(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if err := createMigrationsTable(ctx, db); err != nil {
		return oops.Code("DB_MIGRATION_FAILED").
			With("operation", "create schema_migrations").
			Wrap(err)
	}

	applied, err := AppliedMigrations(ctx, db)
	if err != nil {
		return oops.Code("DB_MIGRATION_FAILED").
			With("operation", "read applied migrations").
			Wrap(err)
	}

	for _, m := range GetMigrations(db.Dialect) {
		if applied[m.Version] {
			logger.DebugContext(ctx, "migration already applied", "version", m.Version)
			continue
		}

		logger.InfoContext(ctx, "applying migration", "version", m.Version, "description", m.Description)
		if err := applyMigration(ctx, db, m); err != nil {
			return oops.Code("DB_MIGRATION_FAILED").
				With("version", m.Version).
				With("description", m.Description).
				Wrap(err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(m.SQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, db.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.Version); err != nil {
		return err
	}
	return tx.Commit()
}
