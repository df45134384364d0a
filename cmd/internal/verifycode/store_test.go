package verifycode

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) (*FileStore, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	st, err := NewFileStore(filepath.Join(t.TempDir(), "data", "codes.jsonl"), WithClock(clk.Now))
	require.NoError(t, err)
	return st, clk
}

func TestFileStore_SetGetExpiry(t *testing.T) {
	t.Parallel()

	st, clk := newTestStore(t)
	require.NoError(t, st.Set(" A@B.com ", "123456", 300*time.Second))

	clk.Advance(299 * time.Second)
	code, ok, err := st.Get("a@b.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "123456", code)

	clk.Advance(time.Second)
	_, ok, err = st.Get("a@b.com")
	require.NoError(t, err)
	require.False(t, ok)

	// The expired record was compacted away.
	raw, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(string(raw)))
}

func TestFileStore_LastWriteWins(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t)
	require.NoError(t, st.Set("a@b.com", "111111", time.Minute))
	require.NoError(t, st.Set("a@b.com", "222222", time.Minute))
	require.NoError(t, st.Set("c@d.com", "333333", time.Minute))

	code, ok, err := st.Get("A@b.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "222222", code)

	require.ErrorIs(t, st.Verify("a@b.com", "111111"), ErrCodeMismatch)
	require.NoError(t, st.Verify("a@b.com", "222222"))

	// Consuming one email leaves others alone.
	code, ok, err = st.Get("c@d.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "333333", code)
}

func TestFileStore_VerifyOutcomes(t *testing.T) {
	t.Parallel()

	st, clk := newTestStore(t)

	require.ErrorIs(t, st.Verify("nobody@b.com", "123456"), ErrCodeAbsent)

	require.NoError(t, st.Set("a@b.com", "123456", time.Minute))
	require.ErrorIs(t, st.Verify("a@b.com", "654321"), ErrCodeMismatch)

	// Mismatch does not consume.
	require.NoError(t, st.Verify("a@b.com", " 123456 "))

	// Single use.
	require.ErrorIs(t, st.Verify("a@b.com", "123456"), ErrCodeAbsent)

	require.NoError(t, st.Set("e@b.com", "999999", time.Minute))
	clk.Advance(time.Minute)
	err := st.Verify("e@b.com", "999999")
	require.ErrorIs(t, err, ErrCodeExpired)
	require.True(t, IsVerificationFailure(err))
}

func TestFileStore_ExpiredSurvivesCompactionByOtherReads(t *testing.T) {
	t.Parallel()

	st, clk := newTestStore(t)
	require.NoError(t, st.Set("a@b.com", "123456", time.Minute))
	clk.Advance(2 * time.Minute)

	// A read for another email compacts a@b.com's record away first.
	_, ok, err := st.Get("other@b.com")
	require.NoError(t, err)
	require.False(t, ok)

	require.ErrorIs(t, st.Verify("a@b.com", "123456"), ErrCodeExpired)
	require.ErrorIs(t, st.Verify("a@b.com", "123456"), ErrCodeAbsent)

	// A fresh code consumed successfully leaves nothing behind.
	require.NoError(t, st.Set("a@b.com", "222222", time.Minute))
	require.NoError(t, st.Verify("a@b.com", "222222"))
	require.ErrorIs(t, st.Verify("a@b.com", "222222"), ErrCodeAbsent)
}

func TestFileStore_Delete(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t)
	require.NoError(t, st.Set("a@b.com", "1", time.Minute))
	require.NoError(t, st.Delete("A@B.COM"))

	_, ok, err := st.Get("a@b.com")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, st.Delete("missing@b.com"))
}

func TestFileStore_DropsMalformedAndReadsLegacyLines(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t)
	content := strings.Join([]string{
		`not json`,
		`{"email":"legacy@b.com","code":"424242","expire_at":"2025-03-01T10:05:00.123456"}`,
		`{"email":"","code":"1","expire_at":"2025-03-01T10:05:00Z"}`,
		`{"email":"x@b.com","code":"1","expire_at":"yesterday"}`,
		``,
	}, "\n")
	require.NoError(t, os.WriteFile(st.Path(), []byte(content), 0o600))

	recs, err := st.List()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "legacy@b.com", recs[0].Email)

	raw, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], `"expire_at":"2025-03-01T10:05:00.123456Z"`)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	st, clk := newTestStore(t)
	require.NoError(t, st.Set("a@b.com", "123456", time.Minute))

	again, err := NewFileStore(st.Path(), WithClock(clk.Now))
	require.NoError(t, err)
	code, ok, err := again.Get("a@b.com")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "123456", code)
}

func TestFileStore_ConcurrentVerifyConsumesOnce(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t)
	require.NoError(t, st.Set("a@b.com", "123456", time.Minute))

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st.Verify("a@b.com", "123456") == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), success.Load())
}

func TestFileStore_RejectsEmptyInput(t *testing.T) {
	t.Parallel()

	st, _ := newTestStore(t)
	require.ErrorIs(t, st.Set(" ", "1", time.Minute), ErrInvalidInput)
	require.ErrorIs(t, st.Set("a@b.com", "", time.Minute), ErrInvalidInput)
	require.ErrorIs(t, st.Set("a@b.com", "1", 0), ErrInvalidInput)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	code, err := Generate(0)
	require.NoError(t, err)
	require.Len(t, code, DefaultLength)

	code, err = Generate(8)
	require.NoError(t, err)
	require.Len(t, code, 8)
	for _, r := range code {
		require.True(t, r >= '0' && r <= '9', "non-digit %q", r)
	}
}
