// Package credential compares password hashes.
//
// Two trust boundaries exist and are kept separate:
//
//   - Client hashes. Browsers hash the password before submitting it. The
//     identity store keeps that value verbatim and Verify compares the
//     submitted value for equality. The hash is not salted and the server
//     never sees the plaintext.
//   - The admin bootstrap password. It comes from server configuration in
//     plaintext and is turned into the same client-side shape (SHA-256 hex)
//     by BootstrapHash so the admin can log in through the normal flow.
package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Verify reports whether submitted matches stored. It fails closed: an
// identity without a stored credential never verifies.
func Verify(submitted, stored string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(stored)) == 1
}

// BootstrapHash returns the lower-case SHA-256 hex digest of plain.
func BootstrapHash(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
