package password

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Policy bounds acceptable passwords.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// DefaultPolicy is the baseline for the bootstrap admin password.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		MaxLength:      256,
		RejectVeryWeak: true,
	}
}

// PolicyFromEnv loads the policy from environment variables.
//
// Env surface:
// - HZ_ADMIN_PASSWORD_MIN_LEN
// - HZ_ADMIN_PASSWORD_MAX_LEN
// - HZ_ADMIN_PASSWORD_REJECT_WEAK (true/false)
func PolicyFromEnv() (Policy, error) {
	p := DefaultPolicy()

	if v, ok := os.LookupEnv("HZ_ADMIN_PASSWORD_MIN_LEN"); ok {
		n, err := atoiBounded(v, 1, 1024)
		if err != nil {
			return Policy{}, fmt.Errorf("HZ_ADMIN_PASSWORD_MIN_LEN: %w", err)
		}
		p.MinLength = n
	}

	if v, ok := os.LookupEnv("HZ_ADMIN_PASSWORD_MAX_LEN"); ok {
		n, err := atoiBounded(v, 1, 4096)
		if err != nil {
			return Policy{}, fmt.Errorf("HZ_ADMIN_PASSWORD_MAX_LEN: %w", err)
		}
		p.MaxLength = n
	}

	if v, ok := os.LookupEnv("HZ_ADMIN_PASSWORD_REJECT_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return Policy{}, fmt.Errorf("HZ_ADMIN_PASSWORD_REJECT_WEAK: %w", err)
		}
		p.RejectVeryWeak = b
	}

	if p.MinLength > p.MaxLength {
		return Policy{}, fmt.Errorf("password policy: min length %d exceeds max length %d", p.MinLength, p.MaxLength)
	}
	return p, nil
}

func atoiBounded(s string, minVal, maxVal int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < minVal || n > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return n, nil
}
