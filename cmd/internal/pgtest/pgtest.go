// Package pgtest provides opt-in PostgreSQL fixtures for integration tests.
//
// Tests run only when BINHACKEN_DATABASE_URL is set. Each call to Schema gets
// a fresh migrated schema that is dropped on cleanup, so tests may run in parallel.
package pgtest

import (
	"context"
	"crypto/rand"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"binhacken/cmd/internal/migrations"
)

// EnvDatabaseURL names the env var holding the test database DSN.
const EnvDatabaseURL = "BINHACKEN_DATABASE_URL"

// Pool opens a pool against BINHACKEN_DATABASE_URL or skips the test.
// Unreachable servers also skip, so local runs without Postgres stay green.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvDatabaseURL))
	if raw == "" {
		t.Skip("integration test skipped: " + EnvDatabaseURL + " is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", EnvDatabaseURL, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		if unreachable(err) {
			t.Skipf("integration test skipped: Postgres unreachable: %v", err)
		}
		t.Fatalf("ping postgres: %v", err)
	}

	t.Cleanup(pool.Close)
	return pool
}

// Schema creates and migrates a unique schema and drops it on cleanup.
func Schema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "bh_it_" + strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := migrations.Up(ctx, pool, schema, nil); err != nil {
		t.Fatalf("migrate schema %s: %v", schema, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})
	return schema
}

func unreachable(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var oe *net.OpError
	return errors.As(err, &oe) || errors.Is(err, context.DeadlineExceeded)
}
