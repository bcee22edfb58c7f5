package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/repository"
	"github.com/sakif/accountkeeper/internal/session"
)

// LoginRequest carries the browser's clock information. TzOffset follows
// JavaScript's Date.getTimezoneOffset (minutes, positive west of UTC).
type LoginRequest struct {
	TzOffset int  `json:"tzOffset"`
	DST      bool `json:"dst"`
}

// Login attaches the identity already established on ctx to the session.
// It does not check credentials; see PasswordLogin and GitHubLogin.
//
// Without an identity the result names the anonymous user and is not an
// error. An identity whose account no longer exists, or whose name now
// belongs to a newer account, is treated the same way. With one, the user's root record is created on first login and
// preferences are loaded; a preferences failure falls back to defaults
// instead of failing the login.
func (s *AccountService) Login(ctx context.Context, sc *session.Context, req LoginRequest) (*model.LoginResult, error) {
	sc.Timezone, sc.TimezoneAbbrev = session.Zone(req.TzOffset, req.DST)

	res := &model.LoginResult{
		AnonUserLandingPageNode: s.opts.AnonLandingNode,
		HomeNodeOverride:        sc.URLID,
		Timezone:                sc.Timezone,
		TimezoneAbbrev:          sc.TimezoneAbbrev,
		Preferences:             model.DefaultPreferences(),
	}

	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		if !sc.Anonymous() {
			sc.Reset()
		}
		res.UserName = model.AnonymousUser
		return res, nil
	}

	userName := id.UserName
	var root *model.Node
	err := s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		if err := verifyIdentity(ctx, st, id); err != nil {
			return err
		}
		var err error
		root, err = s.ensureRoot(ctx, st, userName)
		return err
	})
	if errors.Is(err, apperror.ErrUnauthorized) {
		// The token outlived its account.
		s.logger.Info("login refused: account is gone", slog.String("user", userName))
		sc.Reset()
		res.UserName = model.AnonymousUser
		s.metrics.Observe(metrics.FlowLogin, metrics.OutcomeFailure)
		return res, nil
	}
	if err != nil {
		s.metrics.Observe(metrics.FlowLogin, metrics.OutcomeError)
		return nil, fmt.Errorf("service/login: resolving root for %s: %w", userName, err)
	}
	if sc.UserName != userName {
		sc.Password = ""
	}
	sc.UserName = userName
	sc.Root = &model.RootRef{ID: root.ID, Path: root.Path}

	prefs, err := s.loadPreferences(ctx, userName)
	if err != nil {
		s.logger.Warn("loading preferences failed, using defaults",
			slog.String("user", userName),
			slog.String("error", err.Error()),
		)
		prefs = model.DefaultPreferences()
	}
	sc.Preferences = prefs

	res.Success = true
	res.UserName = userName
	res.Root = sc.Root
	res.Preferences = prefs

	s.metrics.Observe(metrics.FlowLogin, metrics.OutcomeSuccess)
	s.logger.Debug("login", slog.String("user", userName), slog.String("urlId", sc.URLID))
	return res, nil
}

func (s *AccountService) loadPreferences(ctx context.Context, userName string) (model.UserPreferences, error) {
	node, err := s.store.GetNode(ctx, preferencesPath(userName))
	if err != nil {
		return model.UserPreferences{}, err
	}
	prefs := model.DefaultPreferences()
	prefs.AdvancedMode = node.BoolProp(model.PropAdvancedMode)
	prefs.LastVisitedNode, _ = node.StringProp(model.PropLastVisitedNode)
	return prefs, nil
}
