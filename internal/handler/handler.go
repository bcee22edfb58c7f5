// Package handler exposes the account flows over HTTP. Handlers decode the
// request, take the caller's session from the context and render the
// result; all decisions are made by the service layer.
package handler

import (
	"context"
	"net/http"

	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/service"
	"github.com/sakif/accountkeeper/internal/session"
)

// Accounts is the set of flows the handlers call. *service.AccountService
// implements it.
type Accounts interface {
	Initiate(ctx context.Context, sc *session.Context, req service.SignupRequest, clientIP string) (*model.MessageResult, error)
	Confirm(ctx context.Context, code string) (*model.MessageResult, error)
	Login(ctx context.Context, sc *session.Context, req service.LoginRequest) (*model.LoginResult, error)
	PasswordLogin(ctx context.Context, sc *session.Context, req service.PasswordLoginRequest, clientIP string) (*service.AuthResult, error)
	GitHubLogin(ctx context.Context, sc *session.Context, gh *auth.GitHubUser, req service.LoginRequest) (*service.AuthResult, error)
	Logout(sc *session.Context)
	RequestReset(ctx context.Context, req service.ResetRequest, clientIP string) (*model.MessageResult, error)
	RedeemReset(ctx context.Context, req service.RedeemRequest, clientIP string) (*model.MessageResult, error)
	ChangePassword(ctx context.Context, sc *session.Context, req service.ChangeRequest) (*model.MessageResult, error)
	SavePreferences(ctx context.Context, sc *session.Context, prefs model.UserPreferences) (*model.MessageResult, error)
	CloseAccount(ctx context.Context, sc *session.Context) (*model.MessageResult, error)
}

var _ Accounts = (*service.AccountService)(nil)

// sessionOf returns the request's session. Routes are always mounted
// behind session.Manager.Middleware; the fallback keeps a misconfigured
// route from dereferencing nil.
func sessionOf(r *http.Request) *session.Context {
	if sc := session.FromContext(r.Context()); sc != nil {
		return sc
	}
	return session.New()
}
