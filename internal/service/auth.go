package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/ratelimit"
	"github.com/sakif/accountkeeper/internal/repository"
	"github.com/sakif/accountkeeper/internal/session"
	"github.com/sakif/accountkeeper/internal/validate"
)

// PasswordLoginRequest is a user name / password login.
type PasswordLoginRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
	LoginRequest
}

// AuthResult pairs the login outcome with the session token to set as a
// cookie.
type AuthResult struct {
	Login *model.LoginResult
	Token string
}

// PasswordLogin verifies the principal secret, issues a token and runs
// Login with the resulting identity. Unknown users and wrong passwords fail
// with the same message.
func (s *AccountService) PasswordLogin(ctx context.Context, sc *session.Context, req PasswordLoginRequest, clientIP string) (*AuthResult, error) {
	if err := s.limiter.Allow(ctx, ratelimit.ActionLogin, req.UserName, clientIP); err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	p, err := s.authenticate(ctx, req.UserName, req.Password)
	if err != nil {
		s.metrics.ObserveErr(metrics.FlowLogin, err, isUserFailure)
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	id := identityOf(p)
	token, err := s.tokens.Generate(id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", req.UserName, err)
	}

	res, err := s.Login(auth.WithIdentity(ctx, id), sc, req.LoginRequest)
	if err != nil {
		return nil, err
	}
	sc.Password = req.Password

	return &AuthResult{Login: res, Token: token}, nil
}

func (s *AccountService) authenticate(ctx context.Context, userName, password string) (*model.Principal, error) {
	denied := apperror.Concealed(apperror.ErrUnauthorized, msgBadCredentials)

	if validate.UserName(userName) != nil || password == "" {
		return nil, denied
	}
	p, err := s.store.GetPrincipal(ctx, userName)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, denied
		}
		return nil, err
	}
	if err := s.passwords.Verify(p.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return nil, denied
		}
		return nil, err
	}
	return p, nil
}

// GitHubLogin signs in with a GitHub identity, creating an automated
// account (authService "github", no email) on first use. A local account
// with the same name is never taken over.
func (s *AccountService) GitHubLogin(ctx context.Context, sc *session.Context, gh *auth.GitHubUser, req LoginRequest) (*AuthResult, error) {
	if gh == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}
	userName := gh.Login
	if err := validate.UserName(userName); err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}
	if err := validate.Reserved(userName, s.opts.ReservedNames); err != nil {
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	var id auth.Identity
	err := s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		prefs, err := st.GetNode(ctx, preferencesPath(userName))
		switch {
		case err == nil:
			if svc, _ := prefs.StringProp(model.PropAuthService); svc != model.AuthServiceGitHub {
				return &apperror.AppError{
					Err:     apperror.ErrConflict,
					Message: "An account with this user name already exists.",
				}
			}
			p, err := st.GetPrincipal(ctx, userName)
			if err != nil {
				return err
			}
			id = identityOf(p)
			return nil
		case !errors.Is(err, apperror.ErrNotFound):
			return err
		}

		// The secret is random: GitHub accounts never log in by password.
		created, err := s.initNewUser(ctx, st, userName, uuid.NewString(), "", model.AuthServiceGitHub, true)
		if err != nil {
			return err
		}
		if created {
			s.logger.Info("account created from GitHub identity",
				slog.String("user", userName),
				slog.Int64("githubID", gh.ID),
			)
		}
		p, err := st.GetPrincipal(ctx, userName)
		if err != nil {
			return err
		}
		id = identityOf(p)
		return nil
	})
	if err != nil {
		s.metrics.ObserveErr(metrics.FlowLogin, err, isUserFailure)
		return nil, fmt.Errorf("service/auth: GitHub login for %s: %w", userName, err)
	}

	token, err := s.tokens.Generate(id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %s: %w", userName, err)
	}
	res, err := s.Login(auth.WithIdentity(ctx, id), sc, req)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Login: res, Token: token}, nil
}

// Logout drops the identity from the session.
func (s *AccountService) Logout(sc *session.Context) {
	if !sc.Anonymous() {
		s.logger.Info("logout", slog.String("user", sc.UserName))
	}
	sc.Reset()
}
