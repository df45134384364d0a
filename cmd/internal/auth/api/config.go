package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls perimeter API behavior.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// TokenTTL is passed to the token authority; zero selects its default.
	TokenTTL time.Duration

	// DeliveryEnabled reports whether codes are really mailed. It only
	// changes the wording of the email-code response.
	DeliveryEnabled bool
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:      envBool("HZ_TRUST_PROXY", false),
		MaxBodyBytes:    envInt64("HZ_MAX_BODY_BYTES", 1<<20), // 1 MiB
		TokenTTL:        time.Duration(envInt64("HZ_TOKEN_TTL_MINUTES", 720)) * time.Minute,
		DeliveryEnabled: envBool("HZ_SMTP_ENABLED", false),
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
