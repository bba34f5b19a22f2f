package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Spacemarine1789/yamdb-final/internal/auth"
	"github.com/Spacemarine1789/yamdb-final/internal/models"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

type stubMailer struct {
	codes map[string]string
}

func newStubMailer() *stubMailer {
	return &stubMailer{codes: make(map[string]string)}
}

func (m *stubMailer) SendConfirmationCode(_, username, code string) error {
	m.codes[username] = code
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *stubMailer, *storage.Storage) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "catalog.json"))
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	tokens, err := auth.NewTokenIssuer("api-test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}
	mailer := newStubMailer()
	return NewHandler(store, tokens, mailer), mailer, store
}

// doJSON invokes a handler directly; user, when set, is attached to the
// request context the way the server middleware would.
func doJSON(t *testing.T, handler http.HandlerFunc, method, path string, user *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != nil {
		req = req.WithContext(ContextWithUser(req.Context(), *user))
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	decodeBody(t, rec, &resp)
	return resp.Error
}

// signupUser runs the signup flow and returns the stored account.
func signupUser(t *testing.T, h *Handler, store *storage.Storage, username, email string) models.User {
	t.Helper()
	rec := doJSON(t, h.Signup, http.MethodPost, "/api/v1/auth/signup", nil, map[string]string{
		"username": username,
		"email":    email,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup %s status = %d, body %s", username, rec.Code, rec.Body.String())
	}
	user, ok := store.GetUserByUsername(username)
	if !ok {
		t.Fatalf("user %s missing after signup", username)
	}
	return user
}

// userWithRole provisions an account directly in the store at the given role.
func userWithRole(t *testing.T, store *storage.Storage, username string, role models.Role) models.User {
	t.Helper()
	user, err := store.CreateUser(storage.CreateUserParams{
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return user
}

func TestMethodNotAllowedListsAllowedMethods(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h.Signup, http.MethodDelete, "/api/v1/auth/signup", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	if allow := rec.Header().Values("Allow"); len(allow) != 1 || allow[0] != http.MethodPost {
		t.Fatalf("Allow = %v", allow)
	}

	rec = doJSON(t, h.Users, http.MethodPut, "/api/v1/users", nil, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	allowed := strings.Join(rec.Header().Values("Allow"), ",")
	if !strings.Contains(allowed, http.MethodGet) || !strings.Contains(allowed, http.MethodPost) {
		t.Fatalf("Allow = %q", allowed)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error {
	return errors.New("connection refused")
}

func TestHealthReportsDegradedComponents(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := doJSON(t, h.Health(nil), http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthy status = %d", rec.Code)
	}

	rec = doJSON(t, h.Health(map[string]Pinger{"ratelimit-redis": failingPinger{}}), http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("degraded status = %d", rec.Code)
	}
	var resp struct {
		Status     string `json:"status"`
		Components []struct {
			Component string `json:"component"`
			Status    string `json:"status"`
			Error     string `json:"error"`
		} `json:"components"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "degraded" {
		t.Fatalf("overall status = %q", resp.Status)
	}
	found := false
	for _, component := range resp.Components {
		if component.Component == "ratelimit-redis" && component.Error == "connection refused" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing failing component in %+v", resp.Components)
	}
}
