package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for database/sql
	"github.com/pressly/goose/v3"

	"github.com/bosunhq/stockroom/migrations"
)

// OpenSQL opens a database/sql handle over the pgx driver for goose.
func OpenSQL(ctx context.Context, dsn string) (*sql.DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: sql open: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("platform/db: sql ping: %w", err)
	}
	return sqlDB, nil
}

// NewMigrator returns a goose provider over the embedded migrations.
func NewMigrator(sqlDB *sql.DB) (*goose.Provider, error) {
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		return nil, fmt.Errorf("platform/db: goose provider: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, dsn string) error {
	sqlDB, err := OpenSQL(ctx, dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	provider, err := NewMigrator(sqlDB)
	if err != nil {
		return err
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("platform/db: goose up: %w", err)
	}
	return nil
}
