package main

import (
	"testing"
	"time"

	"github.com/Spacemarine1789/yamdb-final/internal/mail"
)

func TestResolveStorageDriver(t *testing.T) {
	cases := []struct {
		name     string
		flag     string
		env      string
		dsn      string
		expected string
	}{
		{name: "flag wins", flag: "json", env: "postgres", dsn: "postgres://x", expected: "json"},
		{name: "env fallback", env: "Postgres", expected: "postgres"},
		{name: "dsn implies postgres", dsn: "postgres://x", expected: "postgres"},
		{name: "default json", expected: "json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			driver, err := resolveStorageDriver(tc.flag, tc.env, tc.dsn)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if driver != tc.expected {
				t.Fatalf("driver = %q, want %q", driver, tc.expected)
			}
		})
	}
}

func TestResolveListenAddr(t *testing.T) {
	if got := resolveListenAddr("  :9000 ", "development", ""); got != ":9000" {
		t.Fatalf("flag addr = %q", got)
	}
	if got := resolveListenAddr("", "development", ":7000"); got != ":7000" {
		t.Fatalf("env addr = %q", got)
	}
	if got := resolveListenAddr("", "production", ""); got != ":80" {
		t.Fatalf("production default = %q", got)
	}
	if got := resolveListenAddr("", "development", ""); got != ":8080" {
		t.Fatalf("development default = %q", got)
	}
}

func TestModeValue(t *testing.T) {
	if got := modeValue("", ""); got != "development" {
		t.Fatalf("default mode = %q", got)
	}
	if got := modeValue("Production", ""); got != "production" {
		t.Fatalf("flag mode = %q", got)
	}
	if got := modeValue("", "PRODUCTION"); got != "production" {
		t.Fatalf("env mode = %q", got)
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example , , https://b.example ")
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("splitAndTrim = %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatal("expected nil for blank input")
	}
}

func TestResolveDuration(t *testing.T) {
	if got := resolveDuration(5*time.Second, "YAMDB_TEST_UNSET", time.Minute); got != 5*time.Second {
		t.Fatalf("flag duration = %v", got)
	}
	t.Setenv("YAMDB_TEST_DURATION", "30s")
	if got := resolveDuration(0, "YAMDB_TEST_DURATION", time.Minute); got != 30*time.Second {
		t.Fatalf("env duration = %v", got)
	}
	if got := resolveDuration(0, "YAMDB_TEST_UNSET", time.Minute); got != time.Minute {
		t.Fatalf("fallback duration = %v", got)
	}
}

func TestConfigureMailerSelection(t *testing.T) {
	mailer, err := configureMailer("log", mail.SMTPConfig{}, nil)
	if err != nil {
		t.Fatalf("log mailer: %v", err)
	}
	if _, ok := mailer.(*mail.LogMailer); !ok {
		t.Fatalf("expected LogMailer, got %T", mailer)
	}

	mailer, err = configureMailer("", mail.SMTPConfig{Addr: "smtp.example.com:587", From: "noreply@example.com"}, nil)
	if err != nil {
		t.Fatalf("implicit smtp mailer: %v", err)
	}
	if _, ok := mailer.(*mail.SMTPMailer); !ok {
		t.Fatalf("expected SMTPMailer, got %T", mailer)
	}

	if _, err := configureMailer("carrier-pigeon", mail.SMTPConfig{}, nil); err == nil {
		t.Fatal("expected error for unknown mail driver")
	}

	if _, err := configureMailer("smtp", mail.SMTPConfig{}, nil); err == nil {
		t.Fatal("expected error for smtp driver without relay address")
	}
}
