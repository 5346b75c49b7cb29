package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the embedded goose migrations directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewMigrator builds a goose provider over the embedded migrations. Each
// migration runs in its own transaction and is recorded in goose_db_version.
func NewMigrator(db *sql.DB) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, Migrations())
	if err != nil {
		return nil, fmt.Errorf("build migrator: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending migration and returns the names of the ones
// it applied, in order.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	provider, err := NewMigrator(db)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	applied := make([]string, 0, len(results))
	for _, r := range results {
		applied = append(applied, migrationName(r.Source.Path))
	}
	if err != nil {
		return applied, fmt.Errorf("apply migrations: %w", err)
	}
	return applied, nil
}

func migrationName(p string) string {
	return strings.TrimSuffix(path.Base(p), path.Ext(p))
}
