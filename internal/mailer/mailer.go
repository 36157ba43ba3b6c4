// Package mailer delivers out-of-band messages (password reset links).
// Delivery failures are the caller's to tolerate: the reset-request flow
// treats them as non-fatal.
package mailer

import (
	"fmt"
	"log/slog"
	"net/smtp"
)

// Mailer sends a message body to a recipient address.
type Mailer interface {
	Send(recipient, subject, body string) error
}

// SMTPConfig holds connection settings for the SMTP mailer.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail over authenticated SMTP.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer returns a Mailer backed by the given SMTP server.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(recipient, subject, body string) error {
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		recipient, subject, body))

	addr := m.cfg.Host + ":" + m.cfg.Port
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("sending mail to %s: %w", recipient, err)
	}
	return nil
}

// LogMailer logs the message instead of sending it. Used in development and
// whenever no SMTP host is configured.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(recipient, subject, body string) error {
	m.Logger.Info("mail (not sent, no SMTP configured)",
		slog.String("recipient", recipient),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
