package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"

	"envmonitor/internal/types"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one embedded schema file.
type Migration struct {
	Version string
	SQL     string
}

// Migrations returns the embedded migrations ordered by version.
func Migrations() ([]Migration, error) {
	return loadMigrations(migrationFS)
}

func loadMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.Glob(fsys, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	out := make([]Migration, 0, len(entries))
	for _, name := range entries {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		version := strings.TrimSuffix(strings.TrimPrefix(name, "migrations/"), ".sql")
		out = append(out, Migration{Version: version, SQL: string(body)})
	}
	return out, nil
}

// Migrator applies embedded migrations that are not yet recorded in
// schema_migrations. Each migration runs in its own transaction.
type Migrator struct {
	db         TxDB
	migrations []Migration
}

// NewMigrator creates a Migrator for the embedded migration set.
func NewMigrator(db TxDB) (*Migrator, error) {
	m, err := Migrations()
	if err != nil {
		return nil, err
	}
	return &Migrator{db: db, migrations: m}, nil
}

// Up applies pending migrations in order and returns the versions applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if _, err := m.db.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (
		   version    TEXT PRIMARY KEY,
		   applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		 )`,
	); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create schema_migrations", err)
	}

	var applied []string
	for _, mig := range m.migrations {
		var done bool
		if err := m.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`,
			mig.Version,
		).Scan(&done); err != nil {
			return applied, types.NewAppError(types.ErrCodeInternalDB, "failed to read schema_migrations", err)
		}
		if done {
			continue
		}

		err := pgx.BeginFunc(ctx, m.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, mig.Version)
			return err
		})
		if err != nil {
			return applied, types.NewAppError(types.ErrCodeInternalDB,
				fmt.Sprintf("failed to apply migration %s", mig.Version), err)
		}
		applied = append(applied, mig.Version)
	}
	return applied, nil
}
