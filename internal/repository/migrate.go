package repository

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"entgo.io/ent/dialect"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var embedMigrations embed.FS

// Migrate applies every pending migration for the database dialect.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		folder string
		gd     goose.Dialect
	)
	switch db.Dialect {
	case dialect.Postgres:
		folder, gd = "migrations/postgres", goose.DialectPostgres
	case dialect.SQLite:
		folder, gd = "migrations/sqlite", goose.DialectSQLite3
	default:
		return fmt.Errorf("no migrations for dialect %q", db.Dialect)
	}
	fsys, err := fs.Sub(embedMigrations, folder)
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(gd, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	logger.Info("migrations starting", "dialect", db.Dialect)
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("unable to run migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("migration applied", "version", r.Source.Version, "path", r.Source.Path, "duration_ms", r.Duration.Milliseconds())
	}
	return nil
}
