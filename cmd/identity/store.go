package identity

import (
	"context"
	"strings"
	"time"
)

// Role is one of three mutually exclusive capabilities.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole maps a case-insensitive role name onto a known Role.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, true
	case "teacher":
		return RoleTeacher, true
	case "admin":
		return RoleAdmin, true
	default:
		return "", false
	}
}

// Is compares roles case-insensitively. Stored rows are not guaranteed to be lower-case.
func (r Role) Is(other Role) bool {
	return strings.EqualFold(strings.TrimSpace(string(r)), strings.TrimSpace(string(other)))
}

// Identity is the principal record owned by the identity store.
//
// CredentialHash is whatever the client submitted at registration time; this
// layer never salts or re-hashes it. An empty hash means "no password set".
type Identity struct {
	ID             string
	Name           string
	Role           Role
	CredentialHash string
	Email          string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCredential reports whether a password hash has been set.
func (i Identity) HasCredential() bool {
	return strings.TrimSpace(i.CredentialHash) != ""
}

// ProfileUpdate carries optional self-service changes. Nil fields are left untouched.
type ProfileUpdate struct {
	Name  *string
	Email *string
	Role  *Role
}

// Store is the identity persistence boundary.
type Store interface {
	GetByID(ctx context.Context, id string) (Identity, error)
	GetByEmail(ctx context.Context, email string) (Identity, error)

	// Create inserts a new identity. Returns ConflictError when the id or email is taken.
	Create(ctx context.Context, in Identity) error

	// SetCredentialHash stores the caller-computed credential hash.
	SetCredentialHash(ctx context.Context, id, hash string) error

	// SetCredentialHashIfUnset stores hash only while no credential is set.
	// Returns ConflictError{Field: "credential"} when one already is.
	SetCredentialHashIfUnset(ctx context.Context, id, hash string) error

	// SetRole changes the role of an existing identity.
	SetRole(ctx context.Context, id string, role Role) error

	// UpdateProfile applies a partial update and returns the resulting identity.
	UpdateProfile(ctx context.Context, id string, in ProfileUpdate) (Identity, error)
}
