// Package password checks operator-chosen plaintext passwords against a
// length and weak-pattern policy.
//
// Student and teacher credentials arrive pre-hashed from the client and never
// pass through here. The only plaintext this service sees is the bootstrap
// administrator password (HZ_ADMIN_PASSWORD), which is validated before it is
// hashed into the identity store.
package password
