// Package migrations embeds the Postgres schema and applies it with goose.
//
// Statements are unqualified; the target schema is selected by the
// connection's search_path.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// Up applies every pending migration using a connection from pool.
func Up(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	return run(ctx, pool, log, func(ctx context.Context, db gooseDB) error {
		return goose.UpContext(ctx, db, ".")
	})
}

// Status logs the applied/pending state of every migration.
func Status(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) error {
	return run(ctx, pool, log, func(ctx context.Context, db gooseDB) error {
		return goose.StatusContext(ctx, db, ".")
	})
}

// EnsureSchema creates schema when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if pool == nil {
		return fmt.Errorf("migrations: nil pool")
	}
	_, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+quoteIdent(schema))
	return err
}

func run(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger, fn func(context.Context, gooseDB) error) error {
	if pool == nil {
		return fmt.Errorf("migrations: nil pool")
	}
	if log == nil {
		log = slog.Default()
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(files)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrations: dialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	if err := fn(ctx, db); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}
