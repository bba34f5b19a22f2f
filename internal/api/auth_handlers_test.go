package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

func requestToken(t *testing.T, h *Handler, username, code string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, h.Token, http.MethodPost, "/api/v1/auth/token", nil, map[string]string{
		"username":         username,
		"confirmationCode": code,
	})
}

func TestSignupCreatesAccountAndMailsCode(t *testing.T) {
	h, mailer, store := newTestHandler(t)

	rec := doJSON(t, h.Signup, http.MethodPost, "/api/v1/auth/signup", nil, map[string]string{
		"username": "reader",
		"email":    "reader@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	decodeBody(t, rec, &resp)
	if resp.Username != "reader" || resp.Email != "reader@example.com" {
		t.Fatalf("response = %+v", resp)
	}
	if mailer.codes["reader"] == "" {
		t.Fatal("no confirmation code delivered")
	}
	user, ok := store.GetUserByUsername("reader")
	if !ok {
		t.Fatal("account not persisted")
	}
	if user.Role != "user" {
		t.Fatalf("role = %q, want user", user.Role)
	}
}

func TestSignupRepeatReissuesCode(t *testing.T) {
	h, mailer, _ := newTestHandler(t)

	body := map[string]string{"username": "reader", "email": "reader@example.com"}
	doJSON(t, h.Signup, http.MethodPost, "/api/v1/auth/signup", nil, body)
	first := mailer.codes["reader"]

	rec := doJSON(t, h.Signup, http.MethodPost, "/api/v1/auth/signup", nil, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat signup status = %d", rec.Code)
	}
	second := mailer.codes["reader"]
	if second == "" || second == first {
		t.Fatalf("expected a fresh code, first %q second %q", first, second)
	}

	// Only the latest code is accepted.
	if rec := requestToken(t, h, "reader", first); rec.Code != http.StatusBadRequest {
		t.Fatalf("stale code status = %d", rec.Code)
	}
	if rec := requestToken(t, h, "reader", second); rec.Code != http.StatusOK {
		t.Fatalf("fresh code status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestSignupRejectsReservedAndConflictingIdentities(t *testing.T) {
	h, _, _ := newTestHandler(t)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"reserved username", map[string]string{"username": "me", "email": "me@example.com"}},
		{"missing email", map[string]string{"username": "reader"}},
		{"missing username", map[string]string{"email": "reader@example.com"}},
		{"invalid username", map[string]string{"username": "bad name!", "email": "reader@example.com"}},
	}
	for _, tc := range cases {
		rec := doJSON(t, h.Signup, http.MethodPost, "/api/v1/auth/signup", nil, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, body %s", tc.name, rec.Code, rec.Body.String())
		}
	}

	// Username and email pair with another account.
	doJSON(t, h.Signup, http.MethodPost, "/api/v1/auth/signup", nil, map[string]string{
		"username": "reader", "email": "reader@example.com",
	})
	rec := doJSON(t, h.Signup, http.MethodPost, "/api/v1/auth/signup", nil, map[string]string{
		"username": "reader", "email": "other@example.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("email mismatch status = %d", rec.Code)
	}
	rec = doJSON(t, h.Signup, http.MethodPost, "/api/v1/auth/signup", nil, map[string]string{
		"username": "other", "email": "reader@example.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("username mismatch status = %d", rec.Code)
	}
}

func TestTokenExchangeIsSingleUse(t *testing.T) {
	h, mailer, store := newTestHandler(t)
	signupUser(t, h, store, "reader", "reader@example.com")
	code := mailer.codes["reader"]

	rec := requestToken(t, h, "reader", code)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("empty token")
	}

	rec = requestToken(t, h, "reader", code)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reuse status = %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "no outstanding confirmation code" {
		t.Fatalf("reuse error = %q", msg)
	}
}

func TestTokenRejectsBadRequests(t *testing.T) {
	h, mailer, store := newTestHandler(t)
	signupUser(t, h, store, "reader", "reader@example.com")

	rec := requestToken(t, h, "ghost", "123456")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user status = %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "user not found" {
		t.Fatalf("unknown user error = %q", msg)
	}

	rec = requestToken(t, h, "reader", "not-the-code")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong code status = %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "invalid confirmation code" {
		t.Fatalf("wrong code error = %q", msg)
	}

	rec = requestToken(t, h, "reader", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty code status = %d", rec.Code)
	}

	// The real code still works after failed attempts.
	if rec := requestToken(t, h, "reader", mailer.codes["reader"]); rec.Code != http.StatusOK {
		t.Fatalf("valid code status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestTokenInvalidatedByIdentityChange(t *testing.T) {
	h, mailer, store := newTestHandler(t)
	user := signupUser(t, h, store, "reader", "reader@example.com")
	code := mailer.codes["reader"]

	email := "moved@example.com"
	if _, err := store.UpdateUser(user.Username, storage.UserUpdate{Email: &email}); err != nil {
		t.Fatalf("update user: %v", err)
	}

	rec := requestToken(t, h, "reader", code)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "confirmation code is no longer valid" {
		t.Fatalf("error = %q", msg)
	}
}
