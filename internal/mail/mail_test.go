package mail

import (
	"net/smtp"
	"strings"
	"testing"
)

func TestSMTPMailerBuildsMessage(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPConfig{Addr: "relay.example.com:587", From: "noreply@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	mailer.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	if err := mailer.SendConfirmationCode("reader@example.com", "reader", "abc123"); err != nil {
		t.Fatalf("SendConfirmationCode: %v", err)
	}
	if gotAddr != "relay.example.com:587" || gotFrom != "noreply@example.com" {
		t.Fatalf("unexpected relay call: %s %s", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "reader@example.com" {
		t.Fatalf("unexpected recipients: %v", gotTo)
	}
	if !strings.Contains(gotMsg, "abc123") || !strings.Contains(gotMsg, "reader") {
		t.Fatalf("message missing code or username:\n%s", gotMsg)
	}
	if !strings.Contains(gotMsg, "Subject: Your confirmation code") {
		t.Fatalf("message missing subject:\n%s", gotMsg)
	}
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPConfig{From: "noreply@example.com"}); err == nil {
		t.Fatalf("expected error without relay address")
	}
	if _, err := NewSMTPMailer(SMTPConfig{Addr: "relay:25"}); err == nil {
		t.Fatalf("expected error without sender")
	}
}

func TestLogMailerNeverFails(t *testing.T) {
	mailer := NewLogMailer(nil)
	if err := mailer.SendConfirmationCode("a@example.com", "a", "code"); err != nil {
		t.Fatalf("SendConfirmationCode: %v", err)
	}
}
