package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Spacemarine1789/yamdb-final/internal/authz"
	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractToken pulls the bearer token from the Authorization header.
func ExtractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// AuthenticateRequest validates the access token on the request and returns
// the current account record, so role changes apply to in-flight tokens.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractToken(r)
	if token == "" {
		return models.User{}, errors.New("missing access token")
	}
	userID, err := h.Tokens.Verify(token)
	if err != nil {
		return models.User{}, errors.New("invalid or expired access token")
	}
	user, exists := h.Store.GetUser(userID)
	if !exists {
		return models.User{}, errors.New("account not found")
	}
	return user, nil
}

func (h *Handler) requireAuthenticatedUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return models.User{}, false
	}
	return user, true
}

// requireRead authenticates the caller and applies the realm's read rule.
func (h *Handler) requireRead(w http.ResponseWriter, r *http.Request, realm authz.Realm) (models.User, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if decision := authz.CanRead(realm, user); !decision.Allowed {
		writeError(w, http.StatusForbidden, errors.New(decision.Reason))
		return models.User{}, false
	}
	return user, true
}

// requireWrite authenticates the caller and applies the realm's write rule.
// ownerID is the author of the record being modified; empty for creations.
func (h *Handler) requireWrite(w http.ResponseWriter, r *http.Request, realm authz.Realm, ownerID string) (models.User, bool) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return models.User{}, false
	}
	if decision := authz.CanWrite(realm, user, ownerID); !decision.Allowed {
		writeError(w, http.StatusForbidden, errors.New(decision.Reason))
		return models.User{}, false
	}
	return user, true
}
