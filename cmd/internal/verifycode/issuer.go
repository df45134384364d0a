package verifycode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"huozhong/cmd/internal/mail"
)

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = 5 * time.Minute

// ErrDelivery is returned by Issuer.Issue when mail delivery fails in strict mode.
var ErrDelivery = errors.New("verification code delivery failed")

// IssuerConfig configures an Issuer.
type IssuerConfig struct {
	Length int
	TTL    time.Duration

	// Strict turns delivery failures into ErrDelivery instead of logging them.
	Strict bool
}

// Issuer generates a code, stores it, and hands it to a mail.Sender.
type Issuer struct {
	store  *FileStore
	sender mail.Sender
	cfg    IssuerConfig
	log    *slog.Logger
}

// NewIssuer wires an Issuer.
func NewIssuer(store *FileStore, sender mail.Sender, cfg IssuerConfig, log *slog.Logger) *Issuer {
	if cfg.Length <= 0 {
		cfg.Length = DefaultLength
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Issuer{store: store, sender: sender, cfg: cfg, log: log}
}

// TTL returns the validity window of issued codes.
func (i *Issuer) TTL() time.Duration { return i.cfg.TTL }

// Issue creates and delivers a code for email. The code is stored before
// delivery is attempted, so it stays valid even when delivery fails.
func (i *Issuer) Issue(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	code, err := Generate(i.cfg.Length)
	if err != nil {
		return err
	}
	if err := i.store.Set(email, code, i.cfg.TTL); err != nil {
		return err
	}

	err = i.sender.SendVerificationCode(ctx, mail.Message{To: email, Code: code, Validity: i.cfg.TTL})
	if err == nil {
		i.log.Info("verifycode.sent", "to", email)
		return nil
	}

	i.log.Error("verifycode.send_failed", "to", email, "err", err, "strict", i.cfg.Strict)
	if i.cfg.Strict {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}
