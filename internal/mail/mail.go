// Package mail delivers signup confirmation codes. Production uses SMTP; the
// log mailer backs development and tests.
package mail

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer sends a confirmation code to one recipient.
type Mailer interface {
	SendConfirmationCode(to, username, code string) error
}

// SMTPConfig locates the outbound mail relay.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
	Host     string // for AUTH; derived from Addr when empty
}

// SMTPMailer sends codes through a plain SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
	// send allows tests to intercept delivery.
	send func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("smtp address required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp sender address required")
	}
	if cfg.Host == "" {
		host := cfg.Addr
		if idx := strings.LastIndex(host, ":"); idx >= 0 {
			host = host[:idx]
		}
		cfg.Host = host
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}, nil
}

func (m *SMTPMailer) SendConfirmationCode(to, username, code string) error {
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	msg := buildConfirmationMessage(m.cfg.From, to, username, code)
	if err := m.send(m.cfg.Addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send confirmation mail to %s: %w", to, err)
	}
	return nil
}

func buildConfirmationMessage(from, to, username, code string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Your confirmation code\r\n")
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "Hello %s,\r\n\r\nYour confirmation code is: %s\r\n", username, code)
	return []byte(b.String())
}

// LogMailer writes codes to the log instead of delivering them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendConfirmationCode(to, username, code string) error {
	m.logger.Info("confirmation code issued", "to", to, "username", username, "code", code)
	return nil
}
