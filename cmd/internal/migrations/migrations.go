// Package migrations holds the embedded SQL schema and applies it with goose.
//
// Migrations are written without schema qualifiers and run with search_path
// pinned to the target schema, so the same files serve production and the
// throwaway schemas used by integration tests.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// FS contains the goose migration files.
//
//go:embed *.sql
var FS embed.FS

// Up creates schema if needed and applies all pending migrations to it.
func Up(ctx context.Context, pool *pgxpool.Pool, schema string, log *slog.Logger) error {
	if pool == nil {
		return fmt.Errorf("migrations: nil pool")
	}
	if log == nil {
		log = slog.Default()
	}

	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("migrations: create schema: %w", err)
	}

	cc := pool.Config().ConnConfig.Copy()
	if cc.RuntimeParams == nil {
		cc.RuntimeParams = map[string]string{}
	}
	cc.RuntimeParams["search_path"] = schema

	db := stdlib.OpenDB(*cc)
	defer func() { _ = db.Close() }()

	p, err := goose.NewProvider(goose.DialectPostgres, db, FS)
	if err != nil {
		return fmt.Errorf("migrations: provider: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	for _, r := range results {
		log.Info("db.migrate.applied", "schema", schema, "migration", r.String())
	}
	return nil
}
