package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Spacemarine1789/yamdb-final/internal/authz"
	"github.com/Spacemarine1789/yamdb-final/internal/models"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

type createUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

type updateUserRequest struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	Role      *string `json:"role,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Bio       *string `json:"bio,omitempty"`
}

type userResponse struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Bio       string `json:"bio"`
}

func newUserResponse(user models.User) userResponse {
	return userResponse{
		Username:  user.Username,
		Email:     user.Email,
		Role:      string(user.Role),
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Bio:       user.Bio,
	}
}

// Users handles /api/v1/users: admin-only listing and account provisioning.
func (h *Handler) Users(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireRead(w, r, authz.RealmAccounts); !ok {
			return
		}
		limit, offset := listParams(r)
		users := h.Store.ListUsers(limit, offset)
		payload := make([]userResponse, len(users))
		for i, user := range users {
			payload[i] = newUserResponse(user)
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		if _, ok := h.requireWrite(w, r, authz.RealmAccounts, ""); !ok {
			return
		}
		var req createUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		role := models.RoleUser
		if req.Role != "" {
			parsed, ok := models.ParseRole(req.Role)
			if !ok {
				writeError(w, http.StatusBadRequest, errors.New("unknown role"))
				return
			}
			role = parsed
		}
		user, err := h.Store.CreateUser(storage.CreateUserParams{
			Username:  req.Username,
			Email:     req.Email,
			Role:      role,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Bio:       req.Bio,
		})
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newUserResponse(user))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// UserItem handles /api/v1/users/{username}. The /users/me route is
// registered separately and never reaches this handler.
func (h *Handler) UserItem(w http.ResponseWriter, r *http.Request) {
	username := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/users/"), "/")
	if username == "" || strings.Contains(username, "/") {
		writeError(w, http.StatusNotFound, errors.New("user not found"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, ok := h.requireRead(w, r, authz.RealmAccounts); !ok {
			return
		}
		user, ok := h.Store.GetUserByUsername(username)
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("user not found"))
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(user))
	case http.MethodPatch:
		if _, ok := h.requireWrite(w, r, authz.RealmAccounts, ""); !ok {
			return
		}
		var req updateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		update := storage.UserUpdate{
			Username:  req.Username,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Bio:       req.Bio,
		}
		if req.Role != nil {
			parsed, ok := models.ParseRole(*req.Role)
			if !ok {
				writeError(w, http.StatusBadRequest, errors.New("unknown role"))
				return
			}
			update.Role = &parsed
		}
		user, err := h.Store.UpdateUser(username, update)
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(user))
	case http.MethodDelete:
		if _, ok := h.requireWrite(w, r, authz.RealmAccounts, ""); !ok {
			return
		}
		if err := h.Store.DeleteUser(username); err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

// Me handles /api/v1/users/me: any authenticated account may view and edit
// its own profile. The role field is read-only here; PATCH bodies carrying it
// have it ignored rather than rejected.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newUserResponse(user))
	case http.MethodPatch:
		var req updateUserRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		update := storage.UserUpdate{
			Username:  req.Username,
			Email:     req.Email,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Bio:       req.Bio,
		}
		updated, err := h.Store.UpdateUser(user.Username, update)
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(updated))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch)
	}
}
