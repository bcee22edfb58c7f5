package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/service"
)

const stateCookie = "oauth_state"

// GitHubOAuth is the part of auth.GitHubProvider the handler uses.
type GitHubOAuth interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// AuthHandler establishes and drops identities: password login, session
// resume from the token cookie, logout and the GitHub OAuth flow.
//
// The token cookie carries the identity across connections; the session
// cookie carries the per-connection SessionContext. Login writes both.
type AuthHandler struct {
	accounts Accounts
	tokens   *auth.TokenService
	github   GitHubOAuth
	logger   *slog.Logger
}

// NewAuthHandler creates an AuthHandler. github may be nil when GitHub
// login is not configured; its routes are then not mounted.
func NewAuthHandler(accounts Accounts, tokens *auth.TokenService, github GitHubOAuth, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		tokens:   tokens,
		github:   github,
		logger:   logger,
	}
}

// HandleLogin checks a user name and password and logs the session in.
//
// HTTP: POST /api/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req service.PasswordLoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.PasswordLogin(r.Context(), sessionOf(r), req, clientIP(r))
	if err != nil {
		if status, _ := classify(err); status == http.StatusInternalServerError {
			h.logger.Error("login failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	auth.SetTokenCookie(w, res.Token, h.tokens)
	writeJSON(w, http.StatusOK, res.Login)
}

// HandleSession runs LoginFlow for whatever identity the token cookie
// carries. Without one the response describes the anonymous user.
//
// HTTP: POST /api/session
// Body: optional {"tzOffset": 300, "dst": false}
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.accounts.Login(r.Context(), sessionOf(r), req)
	if err != nil {
		h.logger.Error("session login failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLogout clears the token cookie and resets the session.
//
// HTTP: POST /api/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.accounts.Logout(sessionOf(r))
	auth.ClearTokenCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
// A random state value is kept in a short-lived cookie and checked on
// callback.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow and logs the session in,
// creating the account on first use.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != c.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	gh, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	res, err := h.accounts.GitHubLogin(r.Context(), sessionOf(r), gh, service.LoginRequest{})
	if err != nil {
		if status, _ := classify(err); status == http.StatusInternalServerError {
			h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		}
		writeError(w, err)
		return
	}

	auth.SetTokenCookie(w, res.Token, h.tokens)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
