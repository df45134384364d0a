package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate_Bounds(t *testing.T) {
	p := Policy{MinLength: 4, MaxLength: 8}

	require.ErrorIs(t, p.Validate("abc"), ErrPasswordTooShort)
	require.ErrorIs(t, p.Validate(strings.Repeat("a", 9)), ErrPasswordTooLong)
	require.NoError(t, p.Validate("abcd"))
	// Runes, not bytes.
	require.NoError(t, p.Validate("密码密码"))
}

func TestValidate_RejectVeryWeak(t *testing.T) {
	p := DefaultPolicy()

	for _, pw := range []string{"aaaaaaaa", "12345678", "password123", "Admin123"} {
		require.ErrorIs(t, p.Validate(pw), ErrWeakPassword, pw)
	}
	require.NoError(t, p.Validate("correct horse battery"))

	p.RejectVeryWeak = false
	require.NoError(t, p.Validate("aaaaaaaa"))
}

func TestPolicyFromEnv(t *testing.T) {
	t.Setenv("HZ_ADMIN_PASSWORD_MIN_LEN", "12")
	t.Setenv("HZ_ADMIN_PASSWORD_MAX_LEN", "64")
	t.Setenv("HZ_ADMIN_PASSWORD_REJECT_WEAK", "false")

	p, err := PolicyFromEnv()
	require.NoError(t, err)
	require.Equal(t, Policy{MinLength: 12, MaxLength: 64}, p)
}

func TestPolicyFromEnv_Invalid(t *testing.T) {
	t.Setenv("HZ_ADMIN_PASSWORD_MIN_LEN", "100")
	t.Setenv("HZ_ADMIN_PASSWORD_MAX_LEN", "10")
	_, err := PolicyFromEnv()
	require.Error(t, err)

	t.Setenv("HZ_ADMIN_PASSWORD_MIN_LEN", "zero")
	_, err = PolicyFromEnv()
	require.Error(t, err)
}
