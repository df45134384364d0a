// Package rbac answers role questions about an already-authenticated identity
// and owns the idempotent admin bootstrap.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"huozhong/cmd/identity"
)

// Gate checks roles. The zero value can answer RequireRole and
// RequireSelfOrAdmin; EnsureAdminBootstrap needs a store.
type Gate struct {
	store identity.Store
}

// NewGate returns a Gate backed by st.
func NewGate(st identity.Store) *Gate {
	return &Gate{store: st}
}

// RequireRole fails with ErrForbidden unless id holds one of allowed.
func (g *Gate) RequireRole(id identity.Identity, allowed ...identity.Role) error {
	for _, r := range allowed {
		if id.Role.Is(r) {
			return nil
		}
	}
	return &AuthorizationError{
		SubjectID: id.ID,
		Role:      string(id.Role),
		Reason:    "requires one of " + joinRoles(allowed),
	}
}

// RequireSelfOrAdmin allows id to act on targetID when it is the same
// identity or an admin.
func (g *Gate) RequireSelfOrAdmin(id identity.Identity, targetID string) error {
	if identity.NormalizeID(id.ID) == identity.NormalizeID(targetID) && id.ID != "" {
		return nil
	}
	if id.Role.Is(identity.RoleAdmin) {
		return nil
	}
	return &AuthorizationError{
		SubjectID: id.ID,
		Role:      string(id.Role),
		Reason:    "not the owner of " + targetID,
	}
}

// AdminSeed describes the designated administrator.
type AdminSeed struct {
	ID             string
	Name           string
	CredentialHash string
}

// BootstrapResult reports what EnsureAdminBootstrap changed.
type BootstrapResult struct {
	Created  bool
	Promoted bool
}

// EnsureAdminBootstrap makes seed.ID an admin: it creates the identity when
// absent, promotes it when it holds another role, and does nothing otherwise.
// An existing identity's credential is never overwritten.
func (g *Gate) EnsureAdminBootstrap(ctx context.Context, seed AdminSeed) (BootstrapResult, error) {
	if g == nil || g.store == nil {
		return BootstrapResult{}, errors.New("rbac: bootstrap without identity store")
	}
	id := identity.NormalizeID(seed.ID)
	if id == "" {
		return BootstrapResult{}, errors.New("rbac: bootstrap: empty admin id")
	}

	cur, err := g.store.GetByID(ctx, id)
	switch {
	case identity.IsNotFound(err):
		err = g.store.Create(ctx, identity.Identity{
			ID:             id,
			Name:           seed.Name,
			Role:           identity.RoleAdmin,
			CredentialHash: seed.CredentialHash,
		})
		if identity.IsConflict(err) {
			// Lost a race with a concurrent bootstrap; re-evaluate.
			return g.EnsureAdminBootstrap(ctx, seed)
		}
		if err != nil {
			return BootstrapResult{}, fmt.Errorf("rbac: bootstrap create: %w", err)
		}
		return BootstrapResult{Created: true}, nil
	case err != nil:
		return BootstrapResult{}, fmt.Errorf("rbac: bootstrap lookup: %w", err)
	}

	if cur.Role.Is(identity.RoleAdmin) {
		return BootstrapResult{}, nil
	}
	if err := g.store.SetRole(ctx, id, identity.RoleAdmin); err != nil {
		return BootstrapResult{}, fmt.Errorf("rbac: bootstrap promote: %w", err)
	}
	return BootstrapResult{Promoted: true}, nil
}

func joinRoles(rs []identity.Role) string {
	parts := make([]string, 0, len(rs))
	for _, r := range rs {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ", ")
}
