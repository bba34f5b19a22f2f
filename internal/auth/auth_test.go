package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

func TestConfirmationCodeRoundTrip(t *testing.T) {
	code, err := GenerateConfirmationCode()
	if err != nil {
		t.Fatalf("GenerateConfirmationCode: %v", err)
	}
	hash, err := HashConfirmationCode(code)
	if err != nil {
		t.Fatalf("HashConfirmationCode: %v", err)
	}

	if err := VerifyConfirmationCode(hash, code); err != nil {
		t.Fatalf("valid code rejected: %v", err)
	}
	if err := VerifyConfirmationCode(hash, "wrong"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if err := VerifyConfirmationCode("garbage", code); err == nil {
		t.Fatalf("malformed hash should not verify")
	}
}

func TestConfirmationHashesAreSalted(t *testing.T) {
	first, err := HashConfirmationCode("same-code")
	if err != nil {
		t.Fatalf("HashConfirmationCode: %v", err)
	}
	second, err := HashConfirmationCode("same-code")
	if err != nil {
		t.Fatalf("HashConfirmationCode: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct salts to produce distinct hashes")
	}
}

func TestStateFingerprintTracksIdentityFields(t *testing.T) {
	user := models.User{Username: "reader", Email: "reader@example.com", Role: models.RoleUser}
	base := StateFingerprint(user)

	if StateFingerprint(user) != base {
		t.Fatalf("fingerprint should be deterministic")
	}

	renamed := user
	renamed.Username = "Reader"
	if StateFingerprint(renamed) != base {
		t.Fatalf("username case must not change the fingerprint")
	}

	promoted := user
	promoted.Role = models.RoleAdmin
	if StateFingerprint(promoted) == base {
		t.Fatalf("role change must invalidate the fingerprint")
	}

	readdressed := user
	readdressed.Email = "other@example.com"
	if StateFingerprint(readdressed) == base {
		t.Fatalf("email change must invalidate the fingerprint")
	}
}

func TestTokenIssueAndVerify(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, err := issuer.Issue(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	subject, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if subject != "user-1" {
		t.Fatalf("expected subject user-1, got %s", subject)
	}
}

func TestTokenRejectsWrongKeyAndGarbage(t *testing.T) {
	issuer, err := NewTokenIssuer("secret-a", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	other, err := NewTokenIssuer("secret-b", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	token, err := other.Issue(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
	if _, err := issuer.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestTokenExpires(t *testing.T) {
	issued := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer("test-secret", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	issuer.WithClock(func() time.Time { return issued })

	token, err := issuer.Issue(models.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	issuer.WithClock(func() time.Time { return issued.Add(2 * time.Minute) })
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("  ", time.Hour); err == nil {
		t.Fatalf("expected error for blank secret")
	}
}
