package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func mustAuthority(t *testing.T) *Authority {
	t.Helper()
	a, err := NewAuthority(Config{Secret: testSecret, DefaultTTL: time.Hour})
	require.NoError(t, err)
	return a
}

func TestAuthority_IssueVerify_Subject42(t *testing.T) {
	t.Parallel()

	a := mustAuthority(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tok, exp, err := a.Issue("42", 15*time.Minute, t0)
	require.NoError(t, err)
	require.Equal(t, t0.Add(15*time.Minute), exp)

	sub, err := a.Verify(tok, t0.Add(14*time.Minute))
	require.NoError(t, err)
	require.Equal(t, "42", sub)

	_, err = a.Verify(tok, t0.Add(16*time.Minute))
	require.ErrorIs(t, err, ErrExpired)
	require.True(t, IsAuthError(err))
}

func TestAuthority_ExpiryBoundaryIsStrict(t *testing.T) {
	t.Parallel()

	a := mustAuthority(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ttl := 30 * time.Second

	tok, _, err := a.Issue("7", ttl, t0)
	require.NoError(t, err)

	_, err = a.Verify(tok, t0.Add(ttl-time.Second))
	require.NoError(t, err)

	_, err = a.Verify(tok, t0.Add(ttl))
	require.ErrorIs(t, err, ErrExpired)
}

func TestAuthority_FractionalIssueTimeKeepsFullTTL(t *testing.T) {
	t.Parallel()

	a := mustAuthority(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 900_000_000, time.UTC)
	ttl := 15 * time.Minute

	tok, exp, err := a.Issue("42", ttl, t0)
	require.NoError(t, err)
	require.Equal(t, t0.Add(ttl), exp)

	sub, err := a.Verify(tok, t0.Add(ttl-500*time.Millisecond))
	require.NoError(t, err)
	require.Equal(t, "42", sub)

	_, err = a.Verify(tok, t0.Add(ttl))
	require.ErrorIs(t, err, ErrExpired)
}

func TestAuthority_DefaultTTL(t *testing.T) {
	t.Parallel()

	a := mustAuthority(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	_, exp, err := a.Issue("1", 0, t0)
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Hour), exp)

	b, err := NewAuthority(Config{Secret: testSecret})
	require.NoError(t, err)
	require.Equal(t, 720*time.Minute, b.DefaultTTL())
}

func TestAuthority_WrongSecret(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	other, err := NewAuthority(Config{Secret: []byte("another-secret-another-secret-xx")})
	require.NoError(t, err)

	tok, _, err := other.Issue("42", time.Minute, t0)
	require.NoError(t, err)

	_, err = mustAuthority(t).Verify(tok, t0)
	require.ErrorIs(t, err, ErrInvalidSignature)
	require.False(t, errors.Is(err, ErrExpired))
}

func TestAuthority_TamperedPayload(t *testing.T) {
	t.Parallel()

	a := mustAuthority(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	tok, _, err := a.Issue("42", time.Minute, t0)
	require.NoError(t, err)

	forged, _, err := a.Issue("43", time.Minute, t0)
	require.NoError(t, err)

	// Header and payload of one token, signature of another.
	p1 := strings.Split(tok, ".")
	p2 := strings.Split(forged, ".")
	mixed := p2[0] + "." + p2[1] + "." + p1[2]

	_, err = a.Verify(mixed, t0)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestAuthority_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	a := mustAuthority(t)
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	claims := jwt.RegisteredClaims{
		Subject:   "42",
		ExpiresAt: jwt.NewNumericDate(t0.Add(time.Minute)),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)
	_, err = a.Verify(hs512, t0)
	require.ErrorIs(t, err, ErrInvalidSignature)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Verify(none, t0)
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestAuthority_Malformed(t *testing.T) {
	t.Parallel()

	a := mustAuthority(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, raw := range []string{"", "   ", "not-a-token", "a.b.c", "a.b"} {
		_, err := a.Verify(raw, now)
		require.ErrorIs(t, err, ErrMalformed, "input %q", raw)
	}
}

func TestAuthority_MissingClaims(t *testing.T) {
	t.Parallel()

	a := mustAuthority(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "42"}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = a.Verify(noExp, now)
	require.ErrorIs(t, err, ErrMalformed)

	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}).SignedString(testSecret)
	require.NoError(t, err)
	_, err = a.Verify(noSub, now)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestAuthority_IssueRejectsEmptySubject(t *testing.T) {
	t.Parallel()

	_, _, err := mustAuthority(t).Issue("  ", time.Minute, time.Now())
	require.ErrorIs(t, err, ErrEmptySubject)
}

func TestNewAuthority_RequiresSecret(t *testing.T) {
	t.Parallel()

	_, err := NewAuthority(Config{})
	require.ErrorIs(t, err, ErrSecretMissing)
}
