// Package app wires the huozhong perimeter runtime: config, logging,
// persistence, the admission middleware and the auth HTTP routes.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"huozhong/cmd/identity"
	"huozhong/cmd/internal/admission"
	"huozhong/cmd/internal/audit"
	"huozhong/cmd/internal/auth/api"
	"huozhong/cmd/internal/auth/rbac"
	"huozhong/cmd/internal/mail"
	"huozhong/cmd/internal/metrics"
	"huozhong/cmd/internal/verifycode"
	"huozhong/cmd/security/credential"
	"huozhong/cmd/security/token"
)

// App owns every long-lived perimeter component.
type App struct {
	cfg Config
	log Logger

	pool *pgxpool.Pool

	store     identity.Store
	gate      *rbac.Gate
	tokens    *token.Authority
	codes     *verifycode.FileStore
	admission *admission.Controller
	audit     audit.Recorder
	metrics   *metrics.Perimeter

	auth    *api.Handler
	handler http.Handler
}

// New constructs a fully wired App. When it returns an error every resource
// it opened has been released.
func New(ctx context.Context, cfg Config, log Logger) (_ *App, err error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	secret, err := ValidateSecurityConfig(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if cfg.MetricsEnabled {
		a.metrics = metrics.New(true)
	}

	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	a.tokens, err = token.NewAuthority(token.Config{Secret: secret, DefaultTTL: token.DefaultTTL})
	if err != nil {
		return nil, err
	}

	a.codes, err = verifycode.NewFileStore(cfg.CodeFile)
	if err != nil {
		return nil, err
	}
	sender, err := newMailSender(cfg, log)
	if err != nil {
		return nil, err
	}
	issuer := verifycode.NewIssuer(a.codes, sender, verifycode.IssuerConfig{
		Length: cfg.CodeLength,
		TTL:    cfg.CodeTTL,
		Strict: cfg.EmailStrict,
	}, log)

	a.gate = rbac.NewGate(a.store)
	if _, err := BootstrapAdmin(ctx, a.gate, cfg, a.audit, log); err != nil {
		return nil, err
	}

	a.admission = admission.NewController(cfg.Admission, admission.Deps{
		Log:     log,
		Audit:   a.audit,
		Metrics: a.metrics,
	})

	apiCfg := api.LoadConfigFromEnv()
	apiCfg.TrustProxy = cfg.Admission.TrustProxy
	apiCfg.DeliveryEnabled = cfg.SMTPEnabled
	a.auth, err = api.NewHandler(apiCfg, api.Deps{
		Log:     log,
		Store:   a.store,
		Tokens:  a.tokens,
		Gate:    a.gate,
		Codes:   a.codes,
		Issuer:  issuer,
		Limits:  a.admission,
		Audit:   a.audit,
		Metrics: a.metrics,
	})
	if err != nil {
		return nil, err
	}

	a.handler = a.buildHandler()
	return a, nil
}

// openStores selects Postgres-backed persistence when HZ_DATABASE_URL is set
// and the in-memory roster otherwise.
func (a *App) openStores(ctx context.Context) error {
	logRec := audit.LogRecorder{Log: a.log}

	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		a.store = identity.NewMemoryStore()
		a.audit = logRec
		return a.seedIdentities(ctx)
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.pool = pool

	if a.cfg.DBMigrate {
		if err := MigrateDB(ctx, pool, a.cfg, a.log); err != nil {
			return err
		}
	}

	st, err := identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return err
	}
	a.store = st

	pgRec, err := audit.NewPostgresRecorder(pool, a.cfg.DBSchema, a.log)
	if err != nil {
		return err
	}
	a.audit = audit.Multi{logRec, pgRec}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	return a.seedIdentities(ctx)
}

func (a *App) seedIdentities(ctx context.Context) error {
	if a.cfg.IdentitySeedFile == "" {
		return nil
	}
	ids, err := identity.LoadSeedFile(a.cfg.IdentitySeedFile)
	if err != nil {
		return err
	}
	n, err := identity.Seed(ctx, a.store, ids)
	if err != nil {
		return err
	}
	a.log.Info("identity.seeded", "file", a.cfg.IdentitySeedFile, "created", n, "total", len(ids))
	return nil
}

func newMailSender(cfg Config, log Logger) (mail.Sender, error) {
	if !cfg.SMTPEnabled {
		log.Warn("mail.disabled", "hint", "set HZ_SMTP_ENABLED=true to deliver verification codes")
		return mail.LogSender{Log: log}, nil
	}
	s, err := mail.NewSMTPSender(cfg.SMTP)
	if err != nil {
		return nil, err
	}
	log.Info("mail.enabled", "host", cfg.SMTP.Host, "port", cfg.SMTP.Port)
	return s, nil
}

// BootstrapAdmin ensures cfg.AdminID holds the admin role. The configured
// password, if any, is hashed server-side; an existing credential is kept.
func BootstrapAdmin(ctx context.Context, gate *rbac.Gate, cfg Config, rec audit.Recorder, log Logger) (rbac.BootstrapResult, error) {
	if strings.TrimSpace(cfg.AdminID) == "" {
		log.Info("admin.bootstrap.skip", "reason", "no_admin_id")
		return rbac.BootstrapResult{}, nil
	}

	seed := rbac.AdminSeed{ID: cfg.AdminID, Name: cfg.AdminName}
	if cfg.AdminPassword != "" {
		seed.CredentialHash = credential.BootstrapHash(cfg.AdminPassword)
	}

	res, err := gate.EnsureAdminBootstrap(ctx, seed)
	if err != nil {
		return res, err
	}

	if res.Created || res.Promoted {
		if rec != nil {
			rec.Record(ctx, audit.NewEvent(audit.AdminBootstrap, "", identity.NormalizeID(cfg.AdminID), map[string]any{
				"created":  res.Created,
				"promoted": res.Promoted,
			}, time.Now()))
		}
		log.Info("admin.bootstrap.ok", "admin_id", cfg.AdminID, "created", res.Created, "promoted", res.Promoted)
	} else {
		log.Info("admin.bootstrap.noop", "admin_id", cfg.AdminID)
	}
	if res.Created && seed.CredentialHash == "" {
		log.Warn("admin.bootstrap.no_password", "admin_id", cfg.AdminID)
	}
	return res, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Store exposes the identity store (CLI and tests).
func (a *App) Store() identity.Store { return a.store }

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"url", runtimeBaseURL(a.cfg.HTTPAddr),
		"db_enabled", a.pool != nil,
		"smtp_enabled", a.cfg.SMTPEnabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.Close()
		return err
	}

	a.Close()
	a.log.Info("server.stopped")
	return nil
}

// Close releases the database pool, if any. Safe to call more than once.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
