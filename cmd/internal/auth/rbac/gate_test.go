package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"huozhong/cmd/identity"
)

func TestRequireRole(t *testing.T) {
	t.Parallel()

	g := &Gate{}
	teacher := identity.Identity{ID: "t-1", Role: identity.RoleTeacher}

	err := g.RequireRole(teacher, identity.RoleAdmin)
	require.ErrorIs(t, err, ErrForbidden)
	var ae *AuthorizationError
	require.ErrorAs(t, err, &ae)
	require.Equal(t, "t-1", ae.SubjectID)

	require.NoError(t, g.RequireRole(teacher, identity.RoleStudent, identity.RoleTeacher))
	require.NoError(t, g.RequireRole(identity.Identity{ID: "a", Role: "ADMIN"}, identity.RoleAdmin))
	require.ErrorIs(t, g.RequireRole(teacher), ErrForbidden)
}

func TestRequireSelfOrAdmin(t *testing.T) {
	t.Parallel()

	g := &Gate{}
	student := identity.Identity{ID: "42", Role: identity.RoleStudent}
	admin := identity.Identity{ID: "1", Role: identity.RoleAdmin}

	require.NoError(t, g.RequireSelfOrAdmin(student, "42"))
	require.NoError(t, g.RequireSelfOrAdmin(student, " 42 "))
	require.ErrorIs(t, g.RequireSelfOrAdmin(student, "43"), ErrForbidden)
	require.NoError(t, g.RequireSelfOrAdmin(admin, "43"))
	require.ErrorIs(t, g.RequireSelfOrAdmin(identity.Identity{}, ""), ErrForbidden)
}

func TestEnsureAdminBootstrap(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates when absent", func(t *testing.T) {
		st := identity.NewMemoryStore()
		g := NewGate(st)

		res, err := g.EnsureAdminBootstrap(ctx, AdminSeed{ID: "123456", Name: "admin", CredentialHash: "h"})
		require.NoError(t, err)
		require.Equal(t, BootstrapResult{Created: true}, res)

		got, err := st.GetByID(ctx, "123456")
		require.NoError(t, err)
		require.Equal(t, identity.RoleAdmin, got.Role)
		require.Equal(t, "h", got.CredentialHash)

		res, err = g.EnsureAdminBootstrap(ctx, AdminSeed{ID: "123456", Name: "admin", CredentialHash: "other"})
		require.NoError(t, err)
		require.Equal(t, BootstrapResult{}, res)

		got, err = st.GetByID(ctx, "123456")
		require.NoError(t, err)
		require.Equal(t, "h", got.CredentialHash)
	})

	t.Run("promotes existing", func(t *testing.T) {
		st := identity.NewMemoryStore()
		require.NoError(t, st.Create(ctx, identity.Identity{ID: "123456", Role: identity.RoleTeacher}))
		g := NewGate(st)

		res, err := g.EnsureAdminBootstrap(ctx, AdminSeed{ID: "123456"})
		require.NoError(t, err)
		require.Equal(t, BootstrapResult{Promoted: true}, res)

		got, err := st.GetByID(ctx, "123456")
		require.NoError(t, err)
		require.True(t, got.Role.Is(identity.RoleAdmin))
	})

	t.Run("requires store and id", func(t *testing.T) {
		_, err := (&Gate{}).EnsureAdminBootstrap(ctx, AdminSeed{ID: "1"})
		require.Error(t, err)

		_, err = NewGate(identity.NewMemoryStore()).EnsureAdminBootstrap(ctx, AdminSeed{ID: " "})
		require.Error(t, err)
	})
}
