package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"huozhong/cmd/internal/migrations"
)

// NewDBPool builds a pgxpool scoped to cfg.DBSchema and validates connectivity.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = cfg.DBMinConns
	}
	// Migrations are unqualified; search_path decides where they land.
	if cfg.DBSchema != "" {
		pcfg.ConnConfig.RuntimeParams["search_path"] = cfg.DBSchema
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// MigrateDB creates the schema if needed and applies pending migrations.
func MigrateDB(ctx context.Context, pool *pgxpool.Pool, cfg Config, log Logger) error {
	if err := migrations.EnsureSchema(ctx, pool, cfg.DBSchema); err != nil {
		return fmt.Errorf("db: ensure schema: %w", err)
	}
	if err := migrations.Up(ctx, pool, log); err != nil {
		return err
	}
	log.Info("db.migrated", "schema", cfg.DBSchema)
	return nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
