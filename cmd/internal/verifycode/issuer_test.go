package verifycode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"huozhong/cmd/internal/mail"
)

type recordingSender struct {
	got []mail.Message
	err error
}

func (s *recordingSender) SendVerificationCode(_ context.Context, msg mail.Message) error {
	s.got = append(s.got, msg)
	return s.err
}

func TestIssuer_StoresAndSends(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t)
	snd := &recordingSender{}
	iss := NewIssuer(st, snd, IssuerConfig{}, nil)

	require.NoError(t, iss.Issue(context.Background(), " Teacher@School.edu "))
	require.Len(t, snd.got, 1)
	require.Equal(t, "teacher@school.edu", snd.got[0].To)
	require.Equal(t, 5*time.Minute, snd.got[0].Validity)

	code, ok, err := st.Get("teacher@school.edu")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snd.got[0].Code, code)
}

func TestIssuer_DeliveryFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("smtp down")

	t.Run("lenient keeps going", func(t *testing.T) {
		st, _ := newTestStore(t)
		iss := NewIssuer(st, &recordingSender{err: boom}, IssuerConfig{}, nil)
		require.NoError(t, iss.Issue(context.Background(), "a@b.com"))

		_, ok, err := st.Get("a@b.com")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("strict surfaces error but keeps the code", func(t *testing.T) {
		st, _ := newTestStore(t)
		iss := NewIssuer(st, &recordingSender{err: boom}, IssuerConfig{Strict: true}, nil)
		err := iss.Issue(context.Background(), "a@b.com")
		require.ErrorIs(t, err, ErrDelivery)

		_, ok, err := st.Get("a@b.com")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("empty email", func(t *testing.T) {
		st, _ := newTestStore(t)
		iss := NewIssuer(st, &recordingSender{}, IssuerConfig{}, nil)
		require.ErrorIs(t, iss.Issue(context.Background(), "  "), ErrInvalidInput)
	})
}
