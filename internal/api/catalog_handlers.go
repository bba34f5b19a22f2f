package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Spacemarine1789/yamdb-final/internal/authz"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

type slugEntryRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type slugEntryUpdateRequest struct {
	Name *string `json:"name,omitempty"`
	Slug *string `json:"slug,omitempty"`
}

type slugEntryResponse struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// slugCollection abstracts the category and genre stores so both routes share
// one handler body.
type slugCollection struct {
	resource string
	list     func(search string, limit, offset int) []slugEntryResponse
	create   func(name, slug string) (slugEntryResponse, error)
	get      func(slug string) (slugEntryResponse, bool)
	update   func(slug string, update storage.SlugEntryUpdate) (slugEntryResponse, error)
	remove   func(slug string) error
}

func (h *Handler) categoryCollection() slugCollection {
	return slugCollection{
		resource: "category",
		list: func(search string, limit, offset int) []slugEntryResponse {
			entries := h.Store.ListCategories(search, limit, offset)
			payload := make([]slugEntryResponse, len(entries))
			for i, entry := range entries {
				payload[i] = slugEntryResponse{Name: entry.Name, Slug: entry.Slug}
			}
			return payload
		},
		create: func(name, slug string) (slugEntryResponse, error) {
			created, err := h.Store.CreateCategory(name, slug)
			return slugEntryResponse{Name: created.Name, Slug: created.Slug}, err
		},
		get: func(slug string) (slugEntryResponse, bool) {
			entry, ok := h.Store.GetCategory(slug)
			return slugEntryResponse{Name: entry.Name, Slug: entry.Slug}, ok
		},
		update: func(slug string, update storage.SlugEntryUpdate) (slugEntryResponse, error) {
			updated, err := h.Store.UpdateCategory(slug, update)
			return slugEntryResponse{Name: updated.Name, Slug: updated.Slug}, err
		},
		remove: func(slug string) error { return h.Store.DeleteCategory(slug) },
	}
}

func (h *Handler) genreCollection() slugCollection {
	return slugCollection{
		resource: "genre",
		list: func(search string, limit, offset int) []slugEntryResponse {
			entries := h.Store.ListGenres(search, limit, offset)
			payload := make([]slugEntryResponse, len(entries))
			for i, entry := range entries {
				payload[i] = slugEntryResponse{Name: entry.Name, Slug: entry.Slug}
			}
			return payload
		},
		create: func(name, slug string) (slugEntryResponse, error) {
			created, err := h.Store.CreateGenre(name, slug)
			return slugEntryResponse{Name: created.Name, Slug: created.Slug}, err
		},
		get: func(slug string) (slugEntryResponse, bool) {
			entry, ok := h.Store.GetGenre(slug)
			return slugEntryResponse{Name: entry.Name, Slug: entry.Slug}, ok
		},
		update: func(slug string, update storage.SlugEntryUpdate) (slugEntryResponse, error) {
			updated, err := h.Store.UpdateGenre(slug, update)
			return slugEntryResponse{Name: updated.Name, Slug: updated.Slug}, err
		},
		remove: func(slug string) error { return h.Store.DeleteGenre(slug) },
	}
}

// Categories handles /api/v1/categories and /api/v1/categories/{slug}.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.serveSlugCollection(w, r, "/api/v1/categories", h.categoryCollection())
}

// Genres handles /api/v1/genres and /api/v1/genres/{slug}.
func (h *Handler) Genres(w http.ResponseWriter, r *http.Request) {
	h.serveSlugCollection(w, r, "/api/v1/genres", h.genreCollection())
}

func (h *Handler) serveSlugCollection(w http.ResponseWriter, r *http.Request, prefix string, coll slugCollection) {
	slug := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if strings.Contains(slug, "/") {
		writeError(w, http.StatusNotFound, errors.New(coll.resource+" not found"))
		return
	}

	if slug == "" {
		switch r.Method {
		case http.MethodGet:
			limit, offset := listParams(r)
			search := r.URL.Query().Get("search")
			writeJSON(w, http.StatusOK, coll.list(search, limit, offset))
		case http.MethodPost:
			if _, ok := h.requireWrite(w, r, authz.RealmCatalog, ""); !ok {
				return
			}
			var req slugEntryRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			created, err := coll.create(req.Name, req.Slug)
			if err != nil {
				h.respondStoreError(w, r, err)
				return
			}
			h.metrics().ObserveCatalogWrite(coll.resource)
			writeJSON(w, http.StatusCreated, created)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		entry, ok := coll.get(slug)
		if !ok {
			writeError(w, http.StatusNotFound, errors.New(coll.resource+" not found"))
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodPatch:
		if _, ok := h.requireWrite(w, r, authz.RealmCatalog, ""); !ok {
			return
		}
		var req slugEntryUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := coll.update(slug, storage.SlugEntryUpdate{Name: req.Name, Slug: req.Slug})
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveCatalogWrite(coll.resource)
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if _, ok := h.requireWrite(w, r, authz.RealmCatalog, ""); !ok {
			return
		}
		if err := coll.remove(slug); err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveCatalogWrite(coll.resource)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
