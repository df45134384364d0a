package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	netmail "net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig configures SMTPSender.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	Sender     string
	SenderName string

	// Timeout bounds the whole exchange when ctx carries no deadline.
	Timeout time.Duration
}

// SMTPSender speaks SMTP over implicit TLS (SMTPS, port 465 by default).
type SMTPSender struct {
	cfg  SMTPConfig
	from netmail.Address
	now  func() time.Time

	// dial is replaced in tests.
	dial func(ctx context.Context, addr string) (net.Conn, error)
}

// NewSMTPSender validates cfg.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, errors.New("mail: missing smtp host")
	}
	if cfg.Port <= 0 {
		cfg.Port = 465
	}
	sender := strings.TrimSpace(cfg.Sender)
	if sender == "" {
		sender = strings.TrimSpace(cfg.Username)
	}
	if _, err := netmail.ParseAddress(sender); err != nil {
		return nil, fmt.Errorf("mail: invalid sender address: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	s := &SMTPSender{
		cfg:  cfg,
		from: netmail.Address{Name: cfg.SenderName, Address: sender},
		now:  time.Now,
	}
	s.dial = s.dialTLS
	return s, nil
}

func (s *SMTPSender) addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *SMTPSender) dialTLS(ctx context.Context, addr string) (net.Conn, error) {
	d := &tls.Dialer{
		Config: &tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12},
	}
	return d.DialContext(ctx, "tcp", addr)
}

func (s *SMTPSender) SendVerificationCode(ctx context.Context, msg Message) error {
	rcpt, err := netmail.ParseAddress(strings.TrimSpace(msg.To))
	if err != nil {
		return fmt.Errorf("mail: invalid recipient: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	conn, err := s.dial(ctx, s.addr())
	if err != nil {
		return fmt.Errorf("mail: dial: %w", err)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("mail: handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("mail: auth: %w", err)
		}
	}
	if err := c.Mail(s.from.Address); err != nil {
		return fmt.Errorf("mail: MAIL FROM: %w", err)
	}
	if err := c.Rcpt(rcpt.Address); err != nil {
		return fmt.Errorf("mail: RCPT TO: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("mail: DATA: %w", err)
	}
	if _, err := w.Write(compose(s.from, rcpt.Address, msg, s.now())); err != nil {
		_ = w.Close()
		return fmt.Errorf("mail: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mail: DATA end: %w", err)
	}
	return c.Quit()
}
