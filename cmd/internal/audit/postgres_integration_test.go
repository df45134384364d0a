package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"huozhong/cmd/internal/pgtest"
)

func TestPostgresRecorder_RecordThenRecent(t *testing.T) {
	t.Parallel()

	db := pgtest.OpenMigrated(t)
	rec, err := NewPostgresRecorder(db.Pool, db.Schema, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec.Record(ctx, NewEvent(LoginFailed, "10.0.0.1", "42", map[string]any{"reason": "bad_credential"}, t0))
	rec.Record(ctx, NewEvent(LoginSuccess, "10.0.0.1", "42", nil, t0.Add(time.Second)))

	got, err := rec.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, LoginSuccess, got[0].Type)
	require.Equal(t, LoginFailed, got[1].Type)
	require.Equal(t, "bad_credential", got[1].Details["reason"])
	require.Nil(t, got[0].Details)
}
