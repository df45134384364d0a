package verifycode

import "errors"

// Verification outcomes. All three are client errors.
var (
	ErrCodeAbsent   = errors.New("verification code absent")
	ErrCodeExpired  = errors.New("verification code expired")
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// ErrInvalidInput is returned for empty emails or codes.
var ErrInvalidInput = errors.New("invalid verification input")

// IsVerificationFailure reports whether err is one of the verification outcomes.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrCodeAbsent) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrCodeMismatch)
}
