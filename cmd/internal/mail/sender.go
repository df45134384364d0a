// Package mail delivers verification codes.
package mail

import (
	"context"
	"log/slog"
	"time"
)

// Message is one verification-code email.
type Message struct {
	To       string
	Code     string
	Validity time.Duration
}

// Sender delivers verification codes.
type Sender interface {
	SendVerificationCode(ctx context.Context, msg Message) error
}

// LogSender records the issuance without delivering anything. It is used
// when SMTP is disabled; the code itself is never logged.
type LogSender struct {
	Log *slog.Logger
}

func (s LogSender) SendVerificationCode(_ context.Context, msg Message) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("mail.skip",
		"reason", "smtp_disabled",
		"to", msg.To,
		"validity", msg.Validity.String(),
	)
	return nil
}
