package api

import (
	"net/http"
	"testing"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

func TestUsersListingIsAdminOnly(t *testing.T) {
	h, _, store := newTestHandler(t)
	plain := userWithRole(t, store, "plain", models.RoleUser)
	moderator := userWithRole(t, store, "mod", models.RoleModerator)
	admin := userWithRole(t, store, "boss", models.RoleAdmin)
	super, err := store.CreateUser(storage.CreateUserParams{
		Username:  "root",
		Email:     "root@example.com",
		Role:      models.RoleUser,
		Superuser: true,
	})
	if err != nil {
		t.Fatalf("create superuser: %v", err)
	}

	rec := doJSON(t, h.Users, http.MethodGet, "/api/v1/users", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != "authentication required" {
		t.Fatalf("anonymous error = %q", msg)
	}

	for _, denied := range []models.User{plain, moderator} {
		rec := doJSON(t, h.Users, http.MethodGet, "/api/v1/users", &denied, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s status = %d", denied.Username, rec.Code)
		}
		if msg := errorMessage(t, rec); msg != "administrator rights required" {
			t.Fatalf("%s error = %q", denied.Username, msg)
		}
	}

	for _, allowed := range []models.User{admin, super} {
		rec := doJSON(t, h.Users, http.MethodGet, "/api/v1/users", &allowed, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status = %d", allowed.Username, rec.Code)
		}
	}

	rec = doJSON(t, h.Users, http.MethodGet, "/api/v1/users", &admin, nil)
	var listing []map[string]any
	decodeBody(t, rec, &listing)
	if len(listing) != 4 {
		t.Fatalf("listing length = %d", len(listing))
	}
}

func TestAdminCreatesAccountsWithRoles(t *testing.T) {
	h, _, store := newTestHandler(t)
	admin := userWithRole(t, store, "boss", models.RoleAdmin)

	rec := doJSON(t, h.Users, http.MethodPost, "/api/v1/users", &admin, map[string]string{
		"username": "newmod",
		"email":    "newmod@example.com",
		"role":     "moderator",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	decodeBody(t, rec, &resp)
	if resp.Username != "newmod" || resp.Role != "moderator" {
		t.Fatalf("response = %+v", resp)
	}

	rec = doJSON(t, h.Users, http.MethodPost, "/api/v1/users", &admin, map[string]string{
		"username": "weird",
		"email":    "weird@example.com",
		"role":     "overlord",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown role status = %d", rec.Code)
	}

	rec = doJSON(t, h.Users, http.MethodPost, "/api/v1/users", &admin, map[string]string{
		"username": "newmod",
		"email":    "again@example.com",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate username status = %d", rec.Code)
	}
}

func TestUserItemLifecycle(t *testing.T) {
	h, _, store := newTestHandler(t)
	admin := userWithRole(t, store, "boss", models.RoleAdmin)
	userWithRole(t, store, "target", models.RoleUser)

	rec := doJSON(t, h.UserItem, http.MethodGet, "/api/v1/users/target", &admin, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	bio := "writes long reviews"
	rec = doJSON(t, h.UserItem, http.MethodPatch, "/api/v1/users/target", &admin, map[string]any{
		"bio":  bio,
		"role": "moderator",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	updated, ok := store.GetUserByUsername("target")
	if !ok || updated.Bio != bio || updated.Role != models.RoleModerator {
		t.Fatalf("stored user = %+v", updated)
	}

	rec = doJSON(t, h.UserItem, http.MethodDelete, "/api/v1/users/target", &admin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if _, ok := store.GetUserByUsername("target"); ok {
		t.Fatal("user survived delete")
	}

	rec = doJSON(t, h.UserItem, http.MethodGet, "/api/v1/users/target", &admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}

	rec = doJSON(t, h.UserItem, http.MethodGet, "/api/v1/users/a/b", &admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nested path status = %d", rec.Code)
	}
}

func TestMeIgnoresRoleChanges(t *testing.T) {
	h, _, store := newTestHandler(t)
	user := userWithRole(t, store, "plain", models.RoleUser)

	rec := doJSON(t, h.Me, http.MethodGet, "/api/v1/users/me", &user, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var profile struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	decodeBody(t, rec, &profile)
	if profile.Username != "plain" || profile.Role != "user" {
		t.Fatalf("profile = %+v", profile)
	}

	rec = doJSON(t, h.Me, http.MethodPatch, "/api/v1/users/me", &user, map[string]string{
		"firstName": "Pat",
		"role":      "admin",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	stored, _ := store.GetUserByUsername("plain")
	if stored.FirstName != "Pat" {
		t.Fatalf("firstName = %q", stored.FirstName)
	}
	if stored.Role != models.RoleUser {
		t.Fatalf("role escalated to %q", stored.Role)
	}

	rec = doJSON(t, h.Me, http.MethodGet, "/api/v1/users/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", rec.Code)
	}
}
