// Package verifycode stores short-lived, single-use email verification codes.
//
// Records live in an append-only JSON Lines file, one
// {"email","code","expire_at"} object per line with expire_at in RFC 3339
// UTC. Every read compacts the file: expired and unparsable lines are
// dropped and the survivors rewritten. Codes therefore survive a restart.
//
// All operations on a FileStore, including the composite check-then-delete
// in Verify, run under one mutex.
package verifycode
