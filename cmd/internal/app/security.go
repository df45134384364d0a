package app

import (
	"errors"
	"fmt"

	"huozhong/cmd/security/password"
	"huozhong/cmd/security/token"
)

// ValidateSecurityConfig fails startup on an unusable signing secret or a
// bootstrap admin password that violates the password policy.
func ValidateSecurityConfig(cfg Config) ([]byte, error) {
	minBytes := 1
	if cfg.RequireStrongSecret {
		minBytes = token.MinSecretBytes
	}

	secret, err := token.SecretFromEnv(minBytes)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return nil, errors.New("security policy: " + token.SecretEnvKey + " is missing")
		case errors.Is(err, token.ErrSecretTooShort):
			return nil, fmt.Errorf("security policy: HZ_REQUIRE_STRONG_SECRET=true but %s is too short (min %d bytes)",
				token.SecretEnvKey, token.MinSecretBytes)
		default:
			return nil, err
		}
	}

	if cfg.AdminPassword != "" {
		pol, err := password.PolicyFromEnv()
		if err != nil {
			return nil, err
		}
		if err := pol.Validate(cfg.AdminPassword); err != nil {
			return nil, fmt.Errorf("security policy: HZ_ADMIN_PASSWORD: %w", err)
		}
	}

	return secret, nil
}
