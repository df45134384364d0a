package mail

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSMTP serves a single unauthenticated session on conn and returns the
// DATA payload on done.
func fakeSMTP(t *testing.T, conn net.Conn, done chan<- string) {
	t.Helper()

	go func() {
		defer conn.Close()
		r := bufio.NewReader(conn)
		reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

		reply("220 fake ESMTP")
		var data strings.Builder
		inData := false
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				done <- data.String()
				return
			}
			if inData {
				if line == ".\r\n" {
					inData = false
					reply("250 queued")
					continue
				}
				data.WriteString(line)
				continue
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				reply("250 fake")
			case strings.HasPrefix(cmd, "MAIL FROM"), strings.HasPrefix(cmd, "RCPT TO"):
				reply("250 ok")
			case cmd == "DATA":
				inData = true
				reply("354 go ahead")
			case cmd == "QUIT":
				reply("221 bye")
				done <- data.String()
				return
			default:
				reply("502 unsupported")
			}
		}
	}()
}

func TestSMTPSender_Delivers(t *testing.T) {
	t.Parallel()

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Sender: "noreply@example.com", SenderName: "火种云平台"})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	done := make(chan string, 1)
	s.dial = func(context.Context, string) (net.Conn, error) {
		client, server := net.Pipe()
		fakeSMTP(t, server, done)
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.SendVerificationCode(ctx, Message{To: "Teacher@School.edu", Code: "123456", Validity: 5 * time.Minute}))

	payload := <-done
	require.Contains(t, payload, "Content-Transfer-Encoding: base64")
	require.Contains(t, payload, "<Teacher@School.edu>")

	idx := strings.Index(payload, "\r\n\r\n")
	require.Positive(t, idx)
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(strings.TrimSpace(payload[idx+4:]), "\r\n", ""))
	require.NoError(t, err)
	require.Contains(t, string(decoded), "123456")
	require.Contains(t, string(decoded), "5分钟")
}

func TestSMTPSender_DialFailure(t *testing.T) {
	t.Parallel()

	s, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Sender: "noreply@example.com"})
	require.NoError(t, err)
	boom := errors.New("refused")
	s.dial = func(context.Context, string) (net.Conn, error) { return nil, boom }

	err = s.SendVerificationCode(context.Background(), Message{To: "a@example.com", Code: "1"})
	require.ErrorIs(t, err, boom)
}

func TestSMTPSender_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSMTPSender(SMTPConfig{})
	require.Error(t, err)

	_, err = NewSMTPSender(SMTPConfig{Host: "h", Sender: "not an address"})
	require.Error(t, err)

	s, err := NewSMTPSender(SMTPConfig{Host: "h", Username: "user@example.com"})
	require.NoError(t, err)
	require.Equal(t, "h:465", s.addr())

	err = s.SendVerificationCode(context.Background(), Message{To: "bogus", Code: "1"})
	require.Error(t, err)
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	require.NoError(t, LogSender{}.SendVerificationCode(context.Background(), Message{To: "a@example.com", Code: "1"}))
}
