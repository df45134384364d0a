package token

import (
	"errors"
	"fmt"
)

// Verification failure kinds. Every error returned by Authority.Verify is an
// *AuthError that matches exactly one of these with errors.Is.
var (
	ErrMalformed        = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
)

// Configuration errors.
var (
	ErrSecretMissing  = errors.New("token secret missing")
	ErrSecretTooShort = errors.New("token secret too short")
	ErrEmptySubject   = errors.New("token subject empty")
)

// AuthError is an authentication failure. Kind is one of the verification
// kinds above; Err is the underlying parser error, if any.
type AuthError struct {
	Kind error
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsAuthError reports whether err is a token authentication failure.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
