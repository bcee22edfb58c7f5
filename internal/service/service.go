// Package service implements the account lifecycle: signup with emailed
// confirmation codes, login, password reset and change, preferences, and
// account closure.
//
// Every flow step that touches the store runs inside one privileged unit of
// work (repository.Privileged.RunPrivileged): its writes commit together or
// not at all. Separate steps are separate commits, so durable intermediate
// state (a pending signup, a reset code) is what a user retries from.
//
// Handlers never pass a user name that identifies the caller: the acting
// identity always comes from the authenticated request context.
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"math/big"
	"path"
	"time"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/notify"
	"github.com/sakif/accountkeeper/internal/ratelimit"
	"github.com/sakif/accountkeeper/internal/repository"
	"github.com/sakif/accountkeeper/internal/validate"
)

// Subtrees of the node store used by accounts.
const (
	PreferencesRoot = "/userPreferences"
	SignupRoot      = "/signup"
	UsersRoot       = "/root"
)

// User-facing messages that must not vary with the internal cause.
const (
	msgResetFailed     = "Wrong user name and/or email."
	msgInvalidResetKey = "Invalid password reset code."
	msgInvalidSignup   = "Signup code is invalid or has already been used."
	msgBadCredentials  = "Wrong user name or password."
	msgNotLoggedIn     = "You must be logged in."
)

// Cipher reversibly encrypts stored secrets.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Options are the configuration values the flows consume.
type Options struct {
	// PublicURL prefixes the links sent in notifications.
	PublicURL string
	// ReservedNames can never be taken through signup; defaults to
	// validate.DefaultReservedNames.
	ReservedNames   []string
	AnonLandingNode string
	RequireCaptcha  bool
	// AdminName is recorded as the creator of user root records and cannot
	// be closed.
	AdminName string
}

// Deps are the collaborators of AccountService. Limiter and Metrics may be
// nil.
type Deps struct {
	Store     repository.Privileged
	Passwords *auth.PasswordService
	Tokens    *auth.TokenService
	Cipher    Cipher
	Sink      notify.Sink
	Limiter   *ratelimit.Limiter
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Options   Options
}

// AccountService runs the account flows.
type AccountService struct {
	store     repository.Privileged
	passwords *auth.PasswordService
	tokens    *auth.TokenService
	cipher    Cipher
	sink      notify.Sink
	limiter   *ratelimit.Limiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	opts      Options

	now     func() time.Time
	newCode func() string
}

func NewAccountService(d Deps) *AccountService {
	opts := d.Options
	if opts.ReservedNames == nil {
		opts.ReservedNames = validate.DefaultReservedNames
	}
	if opts.AdminName == "" {
		opts.AdminName = "admin"
	}
	return &AccountService{
		store:     d.Store,
		passwords: d.Passwords,
		tokens:    d.Tokens,
		cipher:    d.Cipher,
		sink:      d.Sink,
		limiter:   d.Limiter,
		metrics:   d.Metrics,
		logger:    d.Logger,
		opts:      opts,
		now:       time.Now,
		newCode:   newSignupCode,
	}
}

func preferencesPath(userName string) string { return path.Join(PreferencesRoot, userName) }
func signupPath(userName string) string      { return path.Join(SignupRoot, userName) }
func rootPath(userName string) string        { return path.Join(UsersRoot, userName) }

// actingUser returns the authenticated identity of the request.
func actingUser(ctx context.Context) (auth.Identity, error) {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return auth.Identity{}, apperror.Unauthorized(msgNotLoggedIn)
	}
	return id, nil
}

// verifyIdentity fails with Unauthorized unless the principal id was issued
// for still exists. A token that outlived its account, or one issued to an
// earlier holder of the same name, is refused. Call it inside the unit of
// work that acts on the account.
func verifyIdentity(ctx context.Context, st repository.Store, id auth.Identity) error {
	p, err := st.GetPrincipal(ctx, id.UserName)
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.Unauthorized(msgNotLoggedIn)
	}
	if err != nil {
		return err
	}
	if generation(p) != id.Generation {
		return apperror.Unauthorized(msgNotLoggedIn)
	}
	return nil
}

// generation tells apart accounts that held the same name at different
// times. Tokens carry it; see auth.Identity.
func generation(p *model.Principal) int64 {
	return p.CreatedAt.UnixMilli()
}

// identityOf is the token identity for principal p.
func identityOf(p *model.Principal) auth.Identity {
	return auth.Identity{UserName: p.Name, Generation: generation(p)}
}

// notify hands a message to the sink. Delivery is best-effort: a failure is
// logged and never reaches the caller of the flow.
func (s *AccountService) notify(ctx context.Context, to, subject, body string) {
	if err := s.sink.Send(ctx, to, subject, body); err != nil {
		s.logger.Error("queueing notification failed",
			slog.String("subject", subject),
			slog.String("error", err.Error()),
		)
	}
}

// isUserFailure reports errors caused by the request rather than the system.
func isUserFailure(err error) bool {
	for _, target := range []error{
		apperror.ErrValidation,
		apperror.ErrNotFound,
		apperror.ErrConflict,
		apperror.ErrExpired,
		apperror.ErrUnauthorized,
		apperror.ErrForbidden,
		apperror.ErrRateLimited,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// randomInt63n draws uniformly from [0, n) using crypto/rand.
func randomInt63n(n int64) (int64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}
