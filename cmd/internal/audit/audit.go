// Package audit records security events.
//
// A Recorder never fails the request that produced the event: recording
// errors are logged and dropped.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"huozhong/cmd/identity/ids"
)

// EventType names a security event.
type EventType string

const (
	RateLimitExceeded      EventType = "RATE_LIMIT_EXCEEDED"
	APIRateLimitExceeded   EventType = "API_RATE_LIMIT_EXCEEDED"
	LoginSuccess           EventType = "LOGIN_SUCCESS"
	LoginFailed            EventType = "LOGIN_FAILED"
	VerificationCodeIssued EventType = "VERIFICATION_CODE_ISSUED"
	AdminBootstrap         EventType = "ADMIN_BOOTSTRAP"
)

// Event is one security-relevant occurrence.
type Event struct {
	ID        string
	Type      EventType
	IP        string
	SubjectID string
	Details   map[string]any
	At        time.Time
}

// Recorder persists or forwards events.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// NewEvent stamps an event with an id and time.
func NewEvent(typ EventType, ip, subjectID string, details map[string]any, now time.Time) Event {
	now = now.UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		id = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
	}
	return Event{
		ID:        id,
		Type:      typ,
		IP:        ip,
		SubjectID: subjectID,
		Details:   details,
		At:        now,
	}
}

// LogRecorder writes events as structured log lines.
type LogRecorder struct {
	Log *slog.Logger
}

func (r LogRecorder) Record(ctx context.Context, ev Event) {
	log := r.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		"event_id", ev.ID,
		"event_type", string(ev.Type),
		"ip", ev.IP,
		"at", ev.At.Format(time.RFC3339Nano),
	}
	if ev.SubjectID != "" {
		attrs = append(attrs, "subject_id", ev.SubjectID)
	}
	if len(ev.Details) > 0 {
		attrs = append(attrs, "details", ev.Details)
	}
	level := slog.LevelInfo
	switch ev.Type {
	case RateLimitExceeded, APIRateLimitExceeded, LoginFailed:
		level = slog.LevelWarn
	}
	log.Log(ctx, level, "security.event", attrs...)
}

// Multi fans an event out to every recorder.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, ev Event) {
	for _, r := range m {
		if r != nil {
			r.Record(ctx, ev)
		}
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
