package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Spacemarine1789/yamdb-final/internal/auth"
	"github.com/Spacemarine1789/yamdb-final/internal/mail"
	"github.com/Spacemarine1789/yamdb-final/internal/observability/metrics"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

type Handler struct {
	Store   storage.Repository
	Tokens  *auth.TokenIssuer
	Mailer  mail.Mailer
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

func NewHandler(store storage.Repository, tokens *auth.TokenIssuer, mailer mail.Mailer) *Handler {
	return &Handler{
		Store:   store,
		Tokens:  tokens,
		Mailer:  mailer,
		Logger:  slog.Default(),
		Metrics: metrics.Default(),
	}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler) metrics() *metrics.Recorder {
	if h.Metrics != nil {
		return h.Metrics
	}
	return metrics.Default()
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// WriteError is an exported helper for returning JSON API errors.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

// respondStoreError maps datastore failures onto HTTP statuses: validation
// errors become 400, missing records 404, everything else 500.
func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case storage.IsValidation(err):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, method := range allowed {
		w.Header().Add("Allow", method)
	}
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func decodeJSON(r *http.Request, dest interface{}) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// listParams reads the limit/offset pagination query parameters. Absent or
// malformed values fall back to the defaults.
func listParams(r *http.Request) (limit, offset int) {
	limit = 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339)
}
