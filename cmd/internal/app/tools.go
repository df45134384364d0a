package app

import (
	"context"
	"errors"

	"huozhong/cmd/identity"
	"huozhong/cmd/internal/audit"
	"huozhong/cmd/internal/auth/rbac"
	"huozhong/cmd/internal/migrations"
)

// ErrNoDatabase is returned by operator commands that need HZ_DATABASE_URL.
var ErrNoDatabase = errors.New("HZ_DATABASE_URL is not set")

// BootstrapFromConfig runs the admin bootstrap against the configured database
// without starting the server.
func BootstrapFromConfig(ctx context.Context, cfg Config, log Logger) (rbac.BootstrapResult, error) {
	if cfg.DatabaseURL == "" {
		return rbac.BootstrapResult{}, ErrNoDatabase
	}
	if _, err := ValidateSecurityConfig(cfg); err != nil {
		return rbac.BootstrapResult{}, err
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return rbac.BootstrapResult{}, err
	}
	defer pool.Close()

	if cfg.DBMigrate {
		if err := MigrateDB(ctx, pool, cfg, log); err != nil {
			return rbac.BootstrapResult{}, err
		}
	}

	st, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		return rbac.BootstrapResult{}, err
	}
	pgRec, err := audit.NewPostgresRecorder(pool, cfg.DBSchema, log)
	if err != nil {
		return rbac.BootstrapResult{}, err
	}
	rec := audit.Multi{audit.LogRecorder{Log: log}, pgRec}

	return BootstrapAdmin(ctx, rbac.NewGate(st), cfg, rec, log)
}

// Migrate applies pending migrations ("up") or logs their state ("status").
func Migrate(ctx context.Context, cfg Config, log Logger, action string) error {
	if cfg.DatabaseURL == "" {
		return ErrNoDatabase
	}
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	switch action {
	case "up":
		return MigrateDB(ctx, pool, cfg, log)
	case "status":
		if err := migrations.EnsureSchema(ctx, pool, cfg.DBSchema); err != nil {
			return err
		}
		return migrations.Status(ctx, pool, log)
	default:
		return errors.New("unknown migrate action " + action)
	}
}
