package app

import (
	"fmt"
	"time"

	"huozhong/cmd/internal/admission"
	"huozhong/cmd/internal/mail"
	"huozhong/cmd/internal/verifycode"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32
	DBMigrate   bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, HZ_JWT_SECRET must be at least 32 bytes.
	RequireStrongSecret bool

	Admission admission.Config

	CodeFile   string
	CodeLength int
	CodeTTL    time.Duration

	SMTPEnabled bool
	EmailStrict bool
	SMTP        mail.SMTPConfig

	AdminID       string
	AdminName     string
	AdminPassword string

	IdentitySeedFile string

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() (Config, error) {
	cfg := Config{
		HTTPAddr:  EnvString("HZ_HTTP_ADDR", "0.0.0.0:8000"),
		LogLevel:  EnvString("HZ_LOG_LEVEL", "info"),
		LogFormat: EnvString("HZ_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("HZ_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("HZ_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("HZ_HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       EnvDuration("HZ_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("HZ_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("HZ_DATABASE_URL", ""),
		DBSchema:    EnvString("HZ_DB_SCHEMA", "huozhong"),
		DBMaxConns:  EnvInt32("HZ_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("HZ_DB_MIN_CONNS", 0),
		DBMigrate:   EnvBool("HZ_DB_MIGRATE", true),

		ReadinessRequireDB:  EnvBool("HZ_READINESS_REQUIRE_DB", false),
		RequireStrongSecret: EnvBool("HZ_REQUIRE_STRONG_SECRET", false),

		CodeFile:   EnvString("HZ_CODE_FILE", "data/email_codes.jsonl"),
		CodeLength: EnvInt("HZ_CODE_LENGTH", verifycode.DefaultLength),
		CodeTTL:    time.Duration(EnvInt("HZ_CODE_TTL_SECONDS", int(verifycode.DefaultTTL/time.Second))) * time.Second,

		SMTPEnabled: EnvBool("HZ_SMTP_ENABLED", false),
		EmailStrict: EnvBool("HZ_EMAIL_SEND_STRICT", false),
		SMTP: mail.SMTPConfig{
			Host:       EnvString("HZ_SMTP_HOST", "smtp.qq.com"),
			Port:       EnvInt("HZ_SMTP_PORT", 465),
			Username:   EnvString("HZ_SMTP_USERNAME", ""),
			Password:   EnvString("HZ_SMTP_PASSWORD", ""),
			Sender:     EnvString("HZ_SMTP_SENDER", ""),
			SenderName: EnvString("HZ_SMTP_SENDER_NAME", "Huozhong"),
			Timeout:    EnvDuration("HZ_SMTP_TIMEOUT", 15*time.Second),
		},

		AdminID:       EnvString("HZ_ADMIN_ID", "123456"),
		AdminName:     EnvString("HZ_ADMIN_NAME", "admin"),
		AdminPassword: EnvString("HZ_ADMIN_PASSWORD", ""),

		IdentitySeedFile: EnvString("HZ_IDENTITY_SEED_FILE", ""),

		CORSAllowedOrigins:   EnvStringList("HZ_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("HZ_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("HZ_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: EnvBool("HZ_METRICS_ENABLED", true),
	}

	adm, err := loadAdmissionConfig()
	if err != nil {
		return Config{}, err
	}
	cfg.Admission = adm
	return cfg, nil
}

func loadAdmissionConfig() (admission.Config, error) {
	cfg := admission.DefaultConfig()
	cfg.Client = admission.Limits{
		PerMinute: EnvInt("HZ_RATE_LIMIT_PER_MINUTE", cfg.Client.PerMinute),
		PerHour:   EnvInt("HZ_RATE_LIMIT_PER_HOUR", cfg.Client.PerHour),
	}
	cfg.SweepInterval = EnvDuration("HZ_RATE_LIMIT_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.TrustProxy = EnvBool("HZ_TRUST_PROXY", false)

	if raw := EnvString("HZ_RATE_LIMIT_ENDPOINT_DEFAULT", ""); raw != "" {
		lim, err := admission.ParseLimits(raw)
		if err != nil {
			return admission.Config{}, fmt.Errorf("HZ_RATE_LIMIT_ENDPOINT_DEFAULT: %w", err)
		}
		cfg.EndpointDefault = lim
	}

	if raw := EnvString("HZ_RATE_LIMIT_ENDPOINTS", ""); raw != "" {
		rules, err := admission.ParseEndpoints(raw)
		if err != nil {
			return admission.Config{}, fmt.Errorf("HZ_RATE_LIMIT_ENDPOINTS: %w", err)
		}
		cfg.Endpoints = rules
	}

	if path := EnvString("HZ_RATE_LIMIT_ENDPOINTS_FILE", ""); path != "" {
		rules, def, err := admission.LoadEndpointsFile(path)
		if err != nil {
			return admission.Config{}, fmt.Errorf("HZ_RATE_LIMIT_ENDPOINTS_FILE: %w", err)
		}
		cfg.Endpoints = rules
		if def != nil {
			cfg.EndpointDefault = *def
		}
	}
	return cfg, nil
}
