// Package mail renders and delivers transactional email. Delivery is
// best-effort: callers dispatch asynchronously and only log failures.
package mail

import (
	"context"
	"fmt"

	"github.com/artelie/backend/internal/logging"
	"gopkg.in/gomail.v2"
)

// Message is a multipart email with an HTML body and a plain-text fallback.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers through an SMTP relay using gomail.
type SMTPSender struct {
	from string
	send func(m *gomail.Message) error
}

// NewSMTPSender dials host:port for every message. STARTTLS is negotiated
// when the server offers it.
func NewSMTPSender(host string, port int, username, password, from string) *SMTPSender {
	d := gomail.NewDialer(host, port, username, password)
	return &SMTPSender{from: from, send: func(m *gomail.Message) error { return d.DialAndSend(m) }}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send(s.build(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}
	return m
}

// LogSender writes messages to the log instead of sending them. It stands in
// for SMTP when no relay is configured.
type LogSender struct {
	logger logging.Logger
}

func NewLogSender(l logging.Logger) *LogSender {
	return &LogSender{logger: l.With("module", "mail")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info(ctx, "email not sent, no SMTP relay configured",
		"to", msg.To, "subject", msg.Subject, "text", msg.Text)
	return nil
}
