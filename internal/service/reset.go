package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/ratelimit"
	"github.com/sakif/accountkeeper/internal/repository"
	"github.com/sakif/accountkeeper/internal/session"
	"github.com/sakif/accountkeeper/internal/validate"
)

// resetWindow is both the minimum lifetime of a reset code and the width
// of the random range added on top of it.
const resetWindow = 24 * time.Hour

// ResetRequest asks for a reset link for an account.
type ResetRequest struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

// RedeemRequest completes a reset with the emailed code.
type RedeemRequest struct {
	PassCode    string `json:"passCode"`
	NewPassword string `json:"newPassword"`
}

// ChangeRequest changes the password of the logged-in user.
type ChangeRequest struct {
	NewPassword string `json:"newPassword"`
}

// RequestReset issues a reset code and mails a link carrying it. The code
// is a millisecond timestamp 24 to 48 hours ahead: its random part is the
// secret and the whole value is the expiry. A new request replaces any
// outstanding code.
//
// The supplied email must equal the stored one exactly; this is the only
// thing standing between a stranger and the account. An illegal name, an
// unknown user and a wrong email all fail with the same message.
func (s *AccountService) RequestReset(ctx context.Context, req ResetRequest, clientIP string) (*model.MessageResult, error) {
	res, err := s.requestReset(ctx, req, clientIP)
	s.metrics.ObserveErr(metrics.FlowResetRequest, err, isUserFailure)
	if err != nil {
		return nil, fmt.Errorf("service/reset: %w", err)
	}
	return res, nil
}

func (s *AccountService) requestReset(ctx context.Context, req ResetRequest, clientIP string) (*model.MessageResult, error) {
	if err := s.limiter.Allow(ctx, ratelimit.ActionResetRequest, req.UserName, clientIP); err != nil {
		return nil, err
	}

	if err := validate.UserName(req.UserName); err != nil {
		s.logger.Info("reset refused: illegal user name")
		return nil, apperror.Concealed(apperror.ErrNotFound, msgResetFailed)
	}

	token, err := s.newResetToken()
	if err != nil {
		return nil, err
	}

	err = s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		if _, err := st.GetPrincipal(ctx, req.UserName); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				s.logger.Info("reset refused: no such user", slog.String("user", req.UserName))
				return apperror.Concealed(apperror.ErrNotFound, msgResetFailed)
			}
			return err
		}

		prefs, err := st.GetNode(ctx, preferencesPath(req.UserName))
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				s.logger.Warn("reset refused: account has no preferences", slog.String("user", req.UserName))
				return apperror.Concealed(apperror.ErrNotFound, msgResetFailed)
			}
			return err
		}

		stored, ok := prefs.StringProp(model.PropEmail)
		if !ok || stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(req.Email)) != 1 {
			s.logger.Info("reset refused: email mismatch", slog.String("user", req.UserName))
			return apperror.Concealed(apperror.ErrUnauthorized, msgResetFailed)
		}

		return st.SetProperty(ctx, prefs.Path, model.PropPasswordResetCode, model.Int(token))
	})
	if err != nil {
		return nil, err
	}

	link := s.opts.PublicURL + "?passCode=" + strconv.FormatInt(token, 10)
	s.notify(ctx, req.Email, "Account Password Reset",
		"Password reset was requested on account: "+req.UserName+
			"<p>\nGo to this link to reset your password: <br>\n"+link)

	return &model.MessageResult{
		Success: true,
		Message: "A password reset link has been sent to your email. Check your inbox in a minute or so.",
	}, nil
}

func (s *AccountService) newResetToken() (int64, error) {
	window := resetWindow.Milliseconds()
	jitter, err := randomInt63n(window)
	if err != nil {
		return 0, fmt.Errorf("generating reset code: %w", err)
	}
	return s.now().UnixMilli() + window + jitter, nil
}

// RedeemReset sets a new password using an emailed reset code. The code is
// valid while now is before the instant it encodes, and is cleared in the
// same commit that applies the password: of two concurrent redemptions only
// one succeeds.
func (s *AccountService) RedeemReset(ctx context.Context, req RedeemRequest, clientIP string) (*model.MessageResult, error) {
	res, err := s.redeemReset(ctx, req, clientIP)
	s.metrics.ObserveErr(metrics.FlowResetRedeem, err, isUserFailure)
	if err != nil {
		return nil, fmt.Errorf("service/reset: %w", err)
	}
	return res, nil
}

func (s *AccountService) redeemReset(ctx context.Context, req RedeemRequest, clientIP string) (*model.MessageResult, error) {
	if err := s.limiter.Allow(ctx, ratelimit.ActionResetRedeem, clientIP, ""); err != nil {
		return nil, err
	}
	if err := validate.Password(req.NewPassword); err != nil {
		return nil, err
	}

	invalid := apperror.Concealed(apperror.ErrNotFound, msgInvalidResetKey)
	token, err := strconv.ParseInt(req.PassCode, 10, 64)
	if err != nil {
		return nil, invalid
	}
	if s.now().UnixMilli() >= token {
		return nil, apperror.Expired("Password reset code has expired.")
	}

	var userName string
	err = s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		prefs, err := st.FindByProperty(ctx, PreferencesRoot, model.PropPasswordResetCode, model.Int(token))
		if err != nil {
			return err
		}
		if prefs == nil {
			return invalid
		}
		userName, _ = prefs.StringProp(model.PropUser)
		if userName == "" {
			return fmt.Errorf("preferences %s carry no user name", prefs.Path)
		}

		cleared, err := st.ClearPropertyIf(ctx, prefs.Path, model.PropPasswordResetCode, model.Int(token))
		if err != nil {
			return err
		}
		if !cleared {
			return invalid
		}
		return s.applyPassword(ctx, st, userName, req.NewPassword)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("password reset", slog.String("user", userName))
	return &model.MessageResult{Success: true, Message: "Your password has been changed."}, nil
}

// ChangePassword sets a new password for the logged-in user. The user
// comes from ctx, never from the request body.
func (s *AccountService) ChangePassword(ctx context.Context, sc *session.Context, req ChangeRequest) (*model.MessageResult, error) {
	res, err := s.changePassword(ctx, sc, req)
	s.metrics.ObserveErr(metrics.FlowChange, err, isUserFailure)
	if err != nil {
		return nil, fmt.Errorf("service/reset: %w", err)
	}
	return res, nil
}

func (s *AccountService) changePassword(ctx context.Context, sc *session.Context, req ChangeRequest) (*model.MessageResult, error) {
	id, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	userName := id.UserName
	if err := validate.Password(req.NewPassword); err != nil {
		return nil, err
	}

	err = s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		if err := verifyIdentity(ctx, st, id); err != nil {
			return err
		}
		return s.applyPassword(ctx, st, userName, req.NewPassword)
	})
	if err != nil {
		return nil, err
	}

	sc.Password = req.NewPassword
	s.logger.Info("password changed", slog.String("user", userName))
	return &model.MessageResult{Success: true, Message: "Your password has been changed."}, nil
}
