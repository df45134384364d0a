// Package pgtest holds helpers for opt-in Postgres integration tests.
//
// Tests run only when HZ_TEST_DATABASE_URL is set. Outside CI an unreachable
// server skips instead of failing so local runs stay fast.
package pgtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"huozhong/cmd/internal/migrations"
)

const envURL = "HZ_TEST_DATABASE_URL"

// Scoped is a migrated, throwaway schema together with a pool whose
// search_path points at it.
type Scoped struct {
	Schema string
	Pool   *pgxpool.Pool
}

// OpenMigrated opens a pool, creates a unique schema, applies migrations, and
// registers cleanup that drops the schema.
func OpenMigrated(t *testing.T) Scoped {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(envURL))
	if raw == "" {
		t.Skip("integration test skipped: " + envURL + " is not set")
	}

	admin := mustOpen(t, raw, "")
	schema := "hz_it_" + strings.ToLower(ulid.Make().String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := migrations.EnsureSchema(ctx, admin, schema); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	scoped := mustOpen(t, raw, schema)
	t.Cleanup(func() {
		scoped.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
		admin.Close()
	})

	migCtx, migCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer migCancel()
	if err := migrations.Up(migCtx, scoped, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return Scoped{Schema: schema, Pool: scoped}
}

func mustOpen(t *testing.T, raw, searchPath string) *pgxpool.Pool {
	t.Helper()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", envURL, err)
	}
	if searchPath != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = searchPath
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkip(err) {
			t.Skipf("integration test skipped: Postgres unreachable (%s set): %v", envURL, err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()
	return pool
}

func shouldSkip(err error) bool {
	if err == nil || os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "context deadline exceeded", "timeout", "dial tcp", "no such host"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
