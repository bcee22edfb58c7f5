package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/service"
)

// AccountHandler serves signup, password reset and change, preferences and
// account closure.
type AccountHandler struct {
	accounts Accounts
	logger   *slog.Logger
}

func NewAccountHandler(accounts Accounts, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// HandleSignup starts a signup.
//
// HTTP: POST /api/signup
func (h *AccountHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Initiate(r.Context(), sessionOf(r), req, clientIP(r))
	if err != nil {
		h.fail(w, "signup", err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// HandleConfirm redeems the code from a signup link.
//
// HTTP: GET /api/signup/confirm?signupCode=...
func (h *AccountHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.Confirm(r.Context(), r.URL.Query().Get("signupCode"))
	if err != nil {
		h.fail(w, "signup confirm", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCaptcha issues a fresh challenge for the caller's session.
//
// HTTP: GET /api/captcha
func (h *AccountHandler) HandleCaptcha(w http.ResponseWriter, r *http.Request) {
	text, err := sessionOf(r).IssueCaptcha()
	if err != nil {
		h.fail(w, "captcha", err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, map[string]string{"captcha": text})
}

// HandleResetRequest mails a reset link.
//
// HTTP: POST /api/password/reset-request
//
// An unknown user and a wrong email are reported identically, with the
// same status, so the response cannot be used to discover which accounts exist.
func (h *AccountHandler) HandleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req service.ResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.RequestReset(r.Context(), req, clientIP(r))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrUnauthorized) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "reset_failed",
				Message: apperror.Message(err),
			})
			return
		}
		h.fail(w, "reset request", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReset sets a new password from an emailed code.
//
// HTTP: POST /api/password/reset
func (h *AccountHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req service.RedeemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.RedeemReset(r.Context(), req, clientIP(r))
	if err != nil {
		h.fail(w, "password reset", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleChangePassword changes the logged-in user's password.
//
// HTTP: POST /api/password/change
// Auth: required
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req service.ChangeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.ChangePassword(r.Context(), sessionOf(r), req)
	if err != nil {
		h.fail(w, "password change", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSavePreferences stores the logged-in user's preferences.
//
// HTTP: PUT /api/preferences
// Auth: required
func (h *AccountHandler) HandleSavePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs model.UserPreferences
	if err := decodeJSON(r, &prefs); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.SavePreferences(r.Context(), sessionOf(r), prefs)
	if err != nil {
		h.fail(w, "save preferences", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCloseAccount deletes the logged-in user's account and logs the
// session out.
//
// HTTP: DELETE /api/account
// Auth: required
func (h *AccountHandler) HandleCloseAccount(w http.ResponseWriter, r *http.Request) {
	res, err := h.accounts.CloseAccount(r.Context(), sessionOf(r))
	if err != nil {
		h.fail(w, "account close", err)
		return
	}
	auth.ClearTokenCookie(w)
	writeJSON(w, http.StatusOK, res)
}

// fail logs unexpected errors before rendering; user errors are rendered
// quietly since the service has logged them already.
func (h *AccountHandler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := classify(err); status == http.StatusInternalServerError {
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
	}
	writeError(w, err)
}
