package token

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL matches the historical 12 hour session lifetime.
const DefaultTTL = 720 * time.Minute

// Config configures an Authority.
type Config struct {
	Secret     []byte
	DefaultTTL time.Duration
}

// Authority signs and checks session tokens with a single HMAC secret.
type Authority struct {
	secret     []byte
	defaultTTL time.Duration
}

var precisionOnce sync.Once

// NewAuthority validates cfg and returns an Authority. The secret is copied.
//
// The first call switches jwt NumericDate encoding to microseconds so that a
// token issued at a fractional second lives for its full TTL.
func NewAuthority(cfg Config) (*Authority, error) {
	if len(cfg.Secret) == 0 {
		return nil, ErrSecretMissing
	}
	precisionOnce.Do(func() { jwt.TimePrecision = time.Microsecond })
	ttl := cfg.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authority{
		secret:     append([]byte(nil), cfg.Secret...),
		defaultTTL: ttl,
	}, nil
}

// DefaultTTL returns the TTL applied when Issue is called with ttl <= 0.
func (a *Authority) DefaultTTL() time.Duration { return a.defaultTTL }

// Issue signs a token for subjectID that expires at now+ttl.
func (a *Authority) Issue(subjectID string, ttl time.Duration, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, ErrEmptySubject
	}
	if ttl <= 0 {
		ttl = a.defaultTTL
	}

	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	// exp travels with microsecond precision.
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks the signature and expiry of raw at instant now and returns
// the subject identity id.
func (a *Authority) Verify(raw string, now time.Time) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &AuthError{Kind: ErrMalformed}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)

	var claims jwt.RegisteredClaims
	_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", &AuthError{Kind: classify(err), Err: err}
	}

	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", &AuthError{Kind: ErrMalformed, Err: errors.New("missing subject")}
	}
	return sub, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}
