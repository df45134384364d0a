package admission

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded is the kind carried by every rejection.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// LimitError describes a rejection.
type LimitError struct {
	Scope      string
	Key        string
	Window     string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: scope=%s key=%s window=%s", e.Scope, e.Key, e.Window)
}

func (e *LimitError) Unwrap() error { return ErrRateLimitExceeded }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *LimitError) RetryAfterSeconds() int64 {
	s := int64((e.RetryAfter + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
