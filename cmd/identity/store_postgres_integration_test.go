package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"huozhong/cmd/internal/pgtest"
)

// Integration tests are opt-in and require HZ_TEST_DATABASE_URL.

func mustNewPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	db := pgtest.OpenMigrated(t)
	s, err := NewPostgresStore(db.Pool, WithSchema(db.Schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func TestPostgresStore_CreateThenGet(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, s.Create(ctx, Identity{ID: "2022152002", Name: "Zhang", Role: RoleStudent}))
	require.NoError(t, s.Create(ctx, Identity{ID: "t-1", Name: "Wang", Role: RoleTeacher, Email: "Wang@School.edu"}))

	got, err := s.GetByID(ctx, "2022152002")
	require.NoError(t, err)
	require.Equal(t, RoleStudent, got.Role)
	require.False(t, got.HasCredential())

	got, err = s.GetByEmail(ctx, " wang@school.EDU")
	require.NoError(t, err)
	require.Equal(t, "t-1", got.ID)

	_, err = s.GetByID(ctx, "nobody")
	require.True(t, IsNotFound(err), "got %v", err)
}

func TestPostgresStore_CreateConflicts(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, s.Create(ctx, Identity{ID: "1", Role: RoleTeacher, Email: "a@example.com"}))

	err := s.Create(ctx, Identity{ID: "1", Role: RoleStudent})
	var ce ConflictError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "id", ce.Field)

	err = s.Create(ctx, Identity{ID: "2", Role: RoleTeacher, Email: "A@EXAMPLE.com"})
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "email", ce.Field)

	// Empty emails never collide.
	require.NoError(t, s.Create(ctx, Identity{ID: "3", Role: RoleStudent}))
	require.NoError(t, s.Create(ctx, Identity{ID: "4", Role: RoleStudent}))
}

func TestPostgresStore_Mutations(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, s.Create(ctx, Identity{ID: "42", Name: "old", Role: RoleStudent}))
	require.NoError(t, s.SetCredentialHash(ctx, "42", "5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8"))
	require.NoError(t, s.SetRole(ctx, "42", RoleAdmin))

	name := "new"
	out, err := s.UpdateProfile(ctx, "42", ProfileUpdate{Name: &name})
	require.NoError(t, err)
	require.Equal(t, "new", out.Name)
	require.Equal(t, RoleAdmin, out.Role)
	require.True(t, out.HasCredential())

	require.True(t, IsNotFound(s.SetRole(ctx, "missing", RoleAdmin)))
	require.True(t, IsNotFound(s.SetCredentialHash(ctx, "missing", "x")))
}

func TestPostgresStore_SetCredentialHashIfUnset(t *testing.T) {
	t.Parallel()

	s := mustNewPostgresStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	require.NoError(t, s.Create(ctx, Identity{ID: "43", Role: RoleStudent}))
	require.NoError(t, s.SetCredentialHashIfUnset(ctx, "43", "first"))

	var ce ConflictError
	require.ErrorAs(t, s.SetCredentialHashIfUnset(ctx, "43", "second"), &ce)
	require.Equal(t, "credential", ce.Field)

	got, err := s.GetByID(ctx, "43")
	require.NoError(t, err)
	require.Equal(t, "first", got.CredentialHash)

	require.True(t, IsNotFound(s.SetCredentialHashIfUnset(ctx, "missing", "x")))
}
