package notes

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/voicenotes/internal/dbx"
	"github.com/dmitrijs2005/voicenotes/internal/server/migrations"
	"github.com/pressly/goose/v3"
)

// gooseDialect maps the store dialect onto goose's.
func gooseDialect(d dbx.Dialect) (goose.Dialect, error) {
	switch d {
	case dbx.SQLite:
		return goose.DialectSQLite3, nil
	case dbx.Postgres:
		return goose.DialectPostgres, nil
	default:
		return "", fmt.Errorf("no migration dialect for %q", d)
	}
}

// runMigrations is a seam for tests; it applies the embedded migrations
// through a goose Provider so concurrent stores do not share goose globals.
var runMigrations = func(ctx context.Context, dialect dbx.Dialect, db *sql.DB) error {
	gd, err := gooseDialect(dialect)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(gd, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
