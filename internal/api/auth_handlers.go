package api

import (
	"errors"
	"net/http"

	"github.com/Spacemarine1789/yamdb-final/internal/auth"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type signupResponse struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type tokenRequest struct {
	Username         string `json:"username"`
	ConfirmationCode string `json:"confirmationCode"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Signup handles POST /api/v1/auth/signup. Repeating a signup for an
// existing username/email pair re-issues a fresh confirmation code, so lost
// mails are recoverable without admin involvement.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, created, err := h.Store.RegisterUser(req.Username, req.Email)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	code, err := auth.GenerateConfirmationCode()
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	codeHash, err := auth.HashConfirmationCode(code)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if err := h.Store.SetConfirmation(user.ID, codeHash, auth.StateFingerprint(user)); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	// Delivery failures are logged rather than surfaced: the account and its
	// code exist, and a repeated signup issues a replacement.
	if err := h.Mailer.SendConfirmationCode(user.Email, user.Username, code); err != nil {
		h.logger().Error("confirmation mail delivery failed", "username", user.Username, "error", err)
	}

	if created {
		h.metrics().ObserveAuthEvent("signup_created")
	} else {
		h.metrics().ObserveAuthEvent("signup_repeated")
	}
	writeJSON(w, http.StatusOK, signupResponse{Username: user.Username, Email: user.Email})
}

// Token handles POST /api/v1/auth/token, exchanging a confirmation code for
// an access token. Codes are single use and die with any change to the
// account's identity fields.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, errors.New("username is required"))
		return
	}
	if req.ConfirmationCode == "" {
		writeError(w, http.StatusBadRequest, errors.New("confirmationCode is required"))
		return
	}

	user, ok := h.Store.GetUserByUsername(req.Username)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("user not found"))
		return
	}
	if user.ConfirmationHash == "" {
		h.metrics().ObserveAuthEvent("token_rejected")
		writeError(w, http.StatusBadRequest, errors.New("no outstanding confirmation code"))
		return
	}
	if user.ConfirmationState != auth.StateFingerprint(user) {
		h.metrics().ObserveAuthEvent("token_rejected")
		writeError(w, http.StatusBadRequest, errors.New("confirmation code is no longer valid"))
		return
	}
	if err := auth.VerifyConfirmationCode(user.ConfirmationHash, req.ConfirmationCode); err != nil {
		h.metrics().ObserveAuthEvent("token_rejected")
		writeError(w, http.StatusBadRequest, errors.New("invalid confirmation code"))
		return
	}
	if err := h.Store.ClearConfirmation(user.ID); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	token, err := h.Tokens.Issue(user)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	h.metrics().ObserveAuthEvent("token_issued")
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
