// Package mail defines the outbound notification boundary used by the
// aggregate reporter. The core only depends on the narrow Sender contract;
// deployments choose between a real SMTP transport and a log-only sender
// for development and tests.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Sender delivers a single plain-text message to one recipient.
//
// Implementations must be safe for concurrent use; the reporter may send
// for many users from one scheduling tick.
type Sender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// SMTPSender sends mail through a plain SMTP relay.
//
// Fields:
//   - Addr: relay address in host:port form.
//   - From: envelope and header sender address.
//   - Auth: optional SMTP authentication; nil for open relays (dev).
type SMTPSender struct {
	Addr string
	From string
	Auth smtp.Auth
}

// Send delivers one message via smtp.SendMail. The context is checked
// before dialing; net/smtp does not support mid-send cancellation.
func (s *SMTPSender) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := buildMessage(s.From, recipient, subject, body)
	if err := smtp.SendMail(s.Addr, s.Auth, s.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", recipient, err)
	}
	return nil
}

// LogSender writes messages to the structured log instead of delivering
// them. Used when no SMTP relay is configured.
type LogSender struct{}

// Send logs the message at INFO level and always succeeds.
func (LogSender) Send(_ context.Context, recipient, subject, body string) error {
	log.Info().
		Str("recipient", recipient).
		Str("subject", subject).
		Int("body_bytes", len(body)).
		Msg("mail (log sender)")
	return nil
}

// buildMessage assembles a minimal RFC 5322 plain-text message.
func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
