package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Spacemarine1789/yamdb-final/internal/authz"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

type titleRequest struct {
	Name        string   `json:"name"`
	Year        int      `json:"year"`
	Description string   `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Genre       []string `json:"genre,omitempty"`
}

type titleUpdateRequest struct {
	Name        *string   `json:"name,omitempty"`
	Year        *int      `json:"year,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Genre       *[]string `json:"genre,omitempty"`
}

type titleResponse struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Year        int                 `json:"year"`
	Rating      *int                `json:"rating"`
	Description string              `json:"description"`
	Genre       []slugEntryResponse `json:"genre"`
	Category    *slugEntryResponse  `json:"category"`
}

func (h *Handler) newTitleResponse(title storage.TitleWithRating) titleResponse {
	resp := titleResponse{
		ID:          title.ID,
		Name:        title.Name,
		Year:        title.Year,
		Rating:      title.Rating,
		Description: title.Description,
		Genre:       make([]slugEntryResponse, 0, len(title.GenreSlugs)),
	}
	if title.CategorySlug != nil {
		if category, ok := h.Store.GetCategory(*title.CategorySlug); ok {
			resp.Category = &slugEntryResponse{Name: category.Name, Slug: category.Slug}
		}
	}
	for _, slug := range title.GenreSlugs {
		if genre, ok := h.Store.GetGenre(slug); ok {
			resp.Genre = append(resp.Genre, slugEntryResponse{Name: genre.Name, Slug: genre.Slug})
		}
	}
	return resp
}

// Titles handles the /api/v1/titles subtree, dispatching nested review and
// comment paths to their handlers.
func (h *Handler) Titles(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/titles"), "/")
	if trimmed == "" {
		h.titleCollection(w, r)
		return
	}
	segments := strings.Split(trimmed, "/")
	if len(segments) == 1 {
		h.titleItem(w, r, segments[0])
		return
	}
	if segments[1] == "reviews" {
		h.serveReviews(w, r, segments[0], segments[2:])
		return
	}
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func (h *Handler) titleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := listParams(r)
		filter := storage.TitleFilter{
			Category: r.URL.Query().Get("category"),
			Genre:    r.URL.Query().Get("genre"),
			Name:     r.URL.Query().Get("name"),
			Limit:    limit,
			Offset:   offset,
		}
		if raw := r.URL.Query().Get("year"); raw != "" {
			year, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, errors.New("year must be an integer"))
				return
			}
			filter.Year = &year
		}
		titles := h.Store.ListTitles(filter)
		payload := make([]titleResponse, len(titles))
		for i, title := range titles {
			payload[i] = h.newTitleResponse(title)
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		if _, ok := h.requireWrite(w, r, authz.RealmCatalog, ""); !ok {
			return
		}
		var req titleRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		title, err := h.Store.CreateTitle(storage.CreateTitleParams{
			Name:         req.Name,
			Year:         req.Year,
			Description:  req.Description,
			CategorySlug: req.Category,
			GenreSlugs:   req.Genre,
		})
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveCatalogWrite("title")
		writeJSON(w, http.StatusCreated, h.newTitleResponse(storage.TitleWithRating{Title: title}))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) titleItem(w http.ResponseWriter, r *http.Request, titleID string) {
	switch r.Method {
	case http.MethodGet:
		title, ok := h.Store.GetTitle(titleID)
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("title not found"))
			return
		}
		writeJSON(w, http.StatusOK, h.newTitleResponse(title))
	case http.MethodPatch:
		if _, ok := h.requireWrite(w, r, authz.RealmCatalog, ""); !ok {
			return
		}
		var req titleUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		title, err := h.Store.UpdateTitle(titleID, storage.TitleUpdate{
			Name:         req.Name,
			Year:         req.Year,
			Description:  req.Description,
			CategorySlug: req.Category,
			GenreSlugs:   req.Genre,
		})
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveCatalogWrite("title")
		refreshed, ok := h.Store.GetTitle(title.ID)
		if !ok {
			refreshed = storage.TitleWithRating{Title: title}
		}
		writeJSON(w, http.StatusOK, h.newTitleResponse(refreshed))
	case http.MethodDelete:
		if _, ok := h.requireWrite(w, r, authz.RealmCatalog, ""); !ok {
			return
		}
		if err := h.Store.DeleteTitle(titleID); err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveCatalogWrite("title")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
