package admission

import (
	"sync"
	"time"
)

const (
	minuteHorizon = time.Minute
	hourHorizon   = time.Hour

	// DefaultSweepInterval is how often empty keys are garbage-collected.
	DefaultSweepInterval = 5 * time.Minute
)

// Limits is a (per-minute, per-hour) pair. Zero means unlimited for that
// horizon, not "reject everything"; negative values are refused by the
// parsers.
type Limits struct {
	PerMinute int `yaml:"per_minute" json:"per_minute"`
	PerHour   int `yaml:"per_hour" json:"per_hour"`
}

type window struct {
	minute []time.Time
	hour   []time.Time
}

// prune drops timestamps older than now-horizon. A timestamp exactly one
// horizon old still counts. Sequences are non-decreasing, so dropping is a
// prefix cut.
func (w *window) prune(now time.Time) {
	w.minute = cutBefore(w.minute, now.Add(-minuteHorizon))
	w.hour = cutBefore(w.hour, now.Add(-hourHorizon))
}

func (w *window) empty() bool { return len(w.minute) == 0 && len(w.hour) == 0 }

func cutBefore(ts []time.Time, cut time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cut) {
		i++
	}
	if i == 0 {
		return ts
	}
	if i == len(ts) {
		return ts[:0]
	}
	// Copy down so the backing array does not grow without bound.
	n := copy(ts, ts[i:])
	return ts[:n]
}

// Status is a read-only view of one key's windows.
type Status struct {
	Key             string `json:"key"`
	MinuteCount     int    `json:"minute_requests"`
	MinuteLimit     int    `json:"minute_limit"`
	HourCount       int    `json:"hour_requests"`
	HourLimit       int    `json:"hour_limit"`
	MinuteRemaining int    `json:"minute_remaining"`
	HourRemaining   int    `json:"hour_remaining"`
}

// Limiter is a keyed sliding-window limiter guarded by one mutex.
type Limiter struct {
	scope string

	mu         sync.Mutex
	windows    map[string]*window
	now        func() time.Time
	sweepEvery time.Duration
	lastSweep  time.Time
	onSweep    func(remaining int)
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock overrides the clock (tests).
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSweepInterval sets the lazy sweep period.
func WithSweepInterval(d time.Duration) LimiterOption {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepEvery = d
		}
	}
}

// WithSweepHook is called, under the limiter lock, after each sweep.
func WithSweepHook(fn func(remaining int)) LimiterOption {
	return func(l *Limiter) { l.onSweep = fn }
}

// NewLimiter returns an empty Limiter for scope.
func NewLimiter(scope string, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		scope:      scope,
		windows:    make(map[string]*window),
		now:        time.Now,
		sweepEvery: DefaultSweepInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.lastSweep = l.now()
	return l
}

// Scope returns the scope name used in errors and metrics.
func (l *Limiter) Scope() string { return l.scope }

// Admit records one request for key if both horizons have room and returns
// a *LimitError otherwise. Prune, count and append happen atomically.
func (l *Limiter) Admit(key string, lim Limits) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Read inside the lock so each sequence stays non-decreasing.
	now := l.now()
	l.maybeSweepLocked(now)

	w, ok := l.windows[key]
	if !ok {
		w = &window{}
		l.windows[key] = w
	}
	w.prune(now)

	if lim.PerMinute > 0 && len(w.minute) >= lim.PerMinute {
		return l.rejectLocked(key, "minute", w.minute[0].Add(minuteHorizon).Sub(now))
	}
	if lim.PerHour > 0 && len(w.hour) >= lim.PerHour {
		return l.rejectLocked(key, "hour", w.hour[0].Add(hourHorizon).Sub(now))
	}

	w.minute = append(w.minute, now)
	w.hour = append(w.hour, now)
	return nil
}

func (l *Limiter) rejectLocked(key, horizon string, retry time.Duration) error {
	if w := l.windows[key]; w != nil && w.empty() {
		delete(l.windows, key)
	}
	return &LimitError{Scope: l.scope, Key: key, Window: horizon, RetryAfter: retry}
}

// Status reports key's current counts without recording anything.
func (l *Limiter) Status(key string, lim Limits) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := Status{Key: key, MinuteLimit: lim.PerMinute, HourLimit: lim.PerHour}
	if w, ok := l.windows[key]; ok {
		w.prune(l.now())
		st.MinuteCount = len(w.minute)
		st.HourCount = len(w.hour)
	}
	st.MinuteRemaining = max(0, lim.PerMinute-st.MinuteCount)
	st.HourRemaining = max(0, lim.PerHour-st.HourCount)
	return st
}

// Sweep prunes every key and removes empty ones. It returns the number of
// keys left.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(l.now())
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) maybeSweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.sweepEvery {
		return
	}
	l.sweepLocked(now)
}

func (l *Limiter) sweepLocked(now time.Time) int {
	for k, w := range l.windows {
		w.prune(now)
		if w.empty() {
			delete(l.windows, k)
		}
	}
	l.lastSweep = now
	n := len(l.windows)
	if l.onSweep != nil {
		l.onSweep(n)
	}
	return n
}
