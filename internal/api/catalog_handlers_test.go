package api

import (
	"net/http"
	"testing"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

func createSlugEntry(t *testing.T, h *Handler, handler http.HandlerFunc, path string, admin *models.User, name, slug string) {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, path, admin, map[string]string{"name": name, "slug": slug})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s status = %d, body %s", slug, rec.Code, rec.Body.String())
	}
}

func TestCategoriesReadIsPublicWriteIsAdmin(t *testing.T) {
	h, _, store := newTestHandler(t)
	admin := userWithRole(t, store, "boss", models.RoleAdmin)
	plain := userWithRole(t, store, "plain", models.RoleUser)
	moderator := userWithRole(t, store, "mod", models.RoleModerator)

	body := map[string]string{"name": "Movies", "slug": "movies"}
	rec := doJSON(t, h.Categories, http.MethodPost, "/api/v1/categories", nil, body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous create status = %d", rec.Code)
	}
	for _, denied := range []models.User{plain, moderator} {
		rec := doJSON(t, h.Categories, http.MethodPost, "/api/v1/categories", &denied, body)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s create status = %d", denied.Username, rec.Code)
		}
		if msg := errorMessage(t, rec); msg != "administrator rights required" {
			t.Fatalf("%s create error = %q", denied.Username, msg)
		}
	}

	rec = doJSON(t, h.Categories, http.MethodPost, "/api/v1/categories", &admin, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	decodeBody(t, rec, &created)
	if created.Name != "Movies" || created.Slug != "movies" {
		t.Fatalf("created = %+v", created)
	}

	// Reads are anonymous.
	rec = doJSON(t, h.Categories, http.MethodGet, "/api/v1/categories", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	rec = doJSON(t, h.Categories, http.MethodGet, "/api/v1/categories/movies", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("item status = %d", rec.Code)
	}
}

func TestSlugEntryValidationAndConflicts(t *testing.T) {
	h, _, store := newTestHandler(t)
	admin := userWithRole(t, store, "boss", models.RoleAdmin)
	createSlugEntry(t, h, h.Genres, "/api/v1/genres", &admin, "Drama", "drama")

	cases := []struct {
		name string
		body map[string]string
	}{
		{"duplicate slug", map[string]string{"name": "Dramedy", "slug": "drama"}},
		{"duplicate name", map[string]string{"name": "drama", "slug": "drama-2"}},
		{"missing name", map[string]string{"slug": "thriller"}},
		{"missing slug", map[string]string{"name": "Thriller"}},
		{"bad slug characters", map[string]string{"name": "Thriller", "slug": "no spaces"}},
	}
	for _, tc := range cases {
		rec := doJSON(t, h.Genres, http.MethodPost, "/api/v1/genres", &admin, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, body %s", tc.name, rec.Code, rec.Body.String())
		}
	}
}

func TestSlugEntryUpdateAndDelete(t *testing.T) {
	h, _, store := newTestHandler(t)
	admin := userWithRole(t, store, "boss", models.RoleAdmin)
	createSlugEntry(t, h, h.Genres, "/api/v1/genres", &admin, "Drama", "drama")

	name := "Dramas"
	rec := doJSON(t, h.Genres, http.MethodPatch, "/api/v1/genres/drama", &admin, map[string]string{"name": name})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", rec.Code, rec.Body.String())
	}
	entry, ok := store.GetGenre("drama")
	if !ok || entry.Name != name {
		t.Fatalf("stored genre = %+v", entry)
	}

	rec = doJSON(t, h.Genres, http.MethodDelete, "/api/v1/genres/drama", &admin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h.Genres, http.MethodGet, "/api/v1/genres/drama", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
	rec = doJSON(t, h.Genres, http.MethodDelete, "/api/v1/genres/drama", &admin, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d", rec.Code)
	}
}

func TestSlugCollectionSearchAndPaging(t *testing.T) {
	h, _, store := newTestHandler(t)
	admin := userWithRole(t, store, "boss", models.RoleAdmin)
	for _, entry := range [][2]string{{"Rock", "rock"}, {"Rockabilly", "rockabilly"}, {"Jazz", "jazz"}} {
		createSlugEntry(t, h, h.Genres, "/api/v1/genres", &admin, entry[0], entry[1])
	}

	rec := doJSON(t, h.Genres, http.MethodGet, "/api/v1/genres?search=rock", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	var entries []struct {
		Slug string `json:"slug"`
	}
	decodeBody(t, rec, &entries)
	if len(entries) != 2 {
		t.Fatalf("search matches = %d", len(entries))
	}

	rec = doJSON(t, h.Genres, http.MethodGet, "/api/v1/genres?limit=1&offset=1", nil, nil)
	entries = nil
	decodeBody(t, rec, &entries)
	if len(entries) != 1 {
		t.Fatalf("paged entries = %d", len(entries))
	}

	rec = doJSON(t, h.Genres, http.MethodGet, "/api/v1/genres/rock/extra", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("nested path status = %d", rec.Code)
	}
}
