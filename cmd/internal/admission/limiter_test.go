package admission

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_MinuteWindow(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	l := NewLimiter("client", WithLimiterClock(clk.Now))
	lim := Limits{PerMinute: 3, PerHour: 100}

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Admit("1.2.3.4", lim), "request %d", i+1)
	}

	err := l.Admit("1.2.3.4", lim)
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	var le *LimitError
	require.True(t, errors.As(err, &le))
	require.Equal(t, "client", le.Scope)
	require.Equal(t, "minute", le.Window)
	require.Equal(t, time.Minute, le.RetryAfter)
	require.Equal(t, int64(60), le.RetryAfterSeconds())

	// Other keys are independent.
	require.NoError(t, l.Admit("5.6.7.8", lim))

	// Just past the horizon the oldest timestamps fall out of the window.
	clk.Advance(time.Minute + time.Nanosecond)
	require.NoError(t, l.Admit("1.2.3.4", lim))
}

func TestLimiter_TimestampAtHorizonStillCounts(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	l := NewLimiter("client", WithLimiterClock(clk.Now))
	lim := Limits{PerMinute: 1, PerHour: 100}

	require.NoError(t, l.Admit("k", lim))

	clk.Advance(time.Minute)
	require.ErrorIs(t, l.Admit("k", lim), ErrRateLimitExceeded)

	clk.Advance(time.Millisecond)
	require.NoError(t, l.Admit("k", lim))
}

func TestLimiter_RejectedRequestsAreNotRecorded(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	l := NewLimiter("client", WithLimiterClock(clk.Now))
	lim := Limits{PerMinute: 2, PerHour: 100}

	require.NoError(t, l.Admit("k", lim))
	require.NoError(t, l.Admit("k", lim))
	for i := 0; i < 10; i++ {
		require.Error(t, l.Admit("k", lim))
	}

	st := l.Status("k", lim)
	require.Equal(t, 2, st.MinuteCount)
	require.Equal(t, 2, st.HourCount)
	require.Equal(t, 0, st.MinuteRemaining)
	require.Equal(t, 98, st.HourRemaining)
}

func TestLimiter_HourWindow(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	l := NewLimiter("client", WithLimiterClock(clk.Now))
	lim := Limits{PerMinute: 100, PerHour: 3}

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Admit("k", lim))
		clk.Advance(10 * time.Minute)
	}

	err := l.Admit("k", lim)
	var le *LimitError
	require.ErrorAs(t, err, &le)
	require.Equal(t, "hour", le.Window)
	require.Equal(t, 30*time.Minute, le.RetryAfter)

	clk.Advance(30 * time.Minute)
	require.ErrorIs(t, l.Admit("k", lim), ErrRateLimitExceeded)

	clk.Advance(time.Second)
	require.NoError(t, l.Admit("k", lim))
}

func TestLimiter_DisabledHorizon(t *testing.T) {
	t.Parallel()

	l := NewLimiter("client")
	for i := 0; i < 50; i++ {
		require.NoError(t, l.Admit("k", Limits{}))
	}
}

func TestLimiter_StatusDoesNotCreateKeys(t *testing.T) {
	t.Parallel()

	l := NewLimiter("client")
	st := l.Status("never-seen", Limits{PerMinute: 60, PerHour: 1000})
	require.Equal(t, Status{
		Key:             "never-seen",
		MinuteLimit:     60,
		HourLimit:       1000,
		MinuteRemaining: 60,
		HourRemaining:   1000,
	}, st)
	require.Zero(t, l.Len())
}

func TestLimiter_Sweep(t *testing.T) {
	t.Parallel()

	clk := newTestClock()
	var swept []int
	l := NewLimiter("client",
		WithLimiterClock(clk.Now),
		WithSweepInterval(5*time.Minute),
		WithSweepHook(func(n int) { swept = append(swept, n) }),
	)
	lim := Limits{PerMinute: 10, PerHour: 100}

	require.NoError(t, l.Admit("a", lim))
	require.NoError(t, l.Admit("b", lim))
	require.Equal(t, 2, l.Len())

	// Keys with hour-window entries survive a sweep.
	clk.Advance(5 * time.Minute)
	require.NoError(t, l.Admit("c", lim))
	require.Equal(t, []int{2}, swept)
	require.Equal(t, 3, l.Len())

	clk.Advance(2 * time.Hour)
	require.Zero(t, l.Sweep())
	require.Zero(t, l.Len())
}

func TestLimiter_ConcurrentAdmitNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	l := NewLimiter("client")
	lim := Limits{PerMinute: 25, PerHour: 1000}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Admit("k", lim) == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 25, admitted)
}
