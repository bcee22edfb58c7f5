package auth

// MIDDLEWARE PATTERN IN GO:
// A middleware is a function that takes an http.Handler and returns a new
// one wrapping it. The wrapper can inspect or reject the request before
// calling next.ServeHTTP, which is how chi chains them:
//
//	r.Use(auth.OptionalAuth(tokens))
//	r.With(auth.RequireAuth(tokens)).Delete("/account", ...)

import (
	"context"
	"net/http"
)

// TokenCookie is the name of the HttpOnly cookie holding the session token.
const TokenCookie = "token"

type contextKey string

// identityKey is unexported, so no other package can overwrite the value
// with a plain string key.
const identityKey contextKey = "identity"

// RequireAuth rejects requests without a valid token cookie with 401 and
// otherwise stores the authenticated Identity in the request context.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := extractIdentity(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// OptionalAuth attaches the Identity when a valid token is present and
// lets the request through as anonymous otherwise.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := extractIdentity(r, tokens); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a context carrying an authenticated identity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext returns (Identity{}, false) for anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.UserName != ""
}

// UserNameFromContext returns ("", false) for anonymous requests.
func UserNameFromContext(ctx context.Context) (string, bool) {
	id, ok := IdentityFromContext(ctx)
	return id.UserName, ok
}

// SetTokenCookie writes the session token cookie.
func SetTokenCookie(w http.ResponseWriter, token string, tokens *TokenService) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokens.TTL().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearTokenCookie tells the browser to drop the session token.
func ClearTokenCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// extractIdentity reads the token cookie. A missing cookie is an error
// like any other invalid token.
func extractIdentity(r *http.Request, tokens *TokenService) (Identity, error) {
	cookie, err := r.Cookie(TokenCookie)
	if err != nil {
		return Identity{}, err
	}
	return tokens.Validate(cookie.Value)
}
