package token

import (
	"os"
	"strings"
)

const (
	// SecretEnvKey is the env var name for the signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "HZ_JWT_SECRET"

	// MinSecretBytes is the minimum secret size under the strong-secret policy.
	MinSecretBytes = 32
)

// SecretFromEnv returns the configured secret bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrSecretMissing.
// If too short -> ErrSecretTooShort.
func SecretFromEnv(minBytes int) ([]byte, error) {
	return checkSecret(os.Getenv(SecretEnvKey), minBytes)
}

func checkSecret(raw string, minBytes int) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}
