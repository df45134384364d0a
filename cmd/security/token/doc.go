// Package token issues and verifies session tokens.
//
// A session token is an HS256-signed JWT carrying the subject identity id
// ("sub"), the issue time ("iat") and an absolute expiry ("exp"). Tokens are
// stateless: there is no server-side session table and no revocation list.
// Verification is a pure function of the token, the supplied clock reading
// and the process secret.
//
// Environment:
//   - HZ_JWT_SECRET: signing secret (required).
//
// Policy:
//   - When the strong-secret policy is on, callers must reject secrets shorter
//     than MinSecretBytes.
package token
