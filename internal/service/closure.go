package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/repository"
	"github.com/sakif/accountkeeper/internal/session"
)

// CloseAccount deletes the logged-in user's principal, root subtree and
// preferences, then resets the session. Root and preferences records that
// are already missing are skipped. Once the principal is gone the token
// that named it is refused, so closing twice fails as not logged in.
func (s *AccountService) CloseAccount(ctx context.Context, sc *session.Context) (*model.MessageResult, error) {
	res, err := s.closeAccount(ctx, sc)
	s.metrics.ObserveErr(metrics.FlowClose, err, isUserFailure)
	if err != nil {
		return nil, fmt.Errorf("service/closure: %w", err)
	}
	return res, nil
}

func (s *AccountService) closeAccount(ctx context.Context, sc *session.Context) (*model.MessageResult, error) {
	id, err := actingUser(ctx)
	if err != nil {
		return nil, err
	}
	userName := id.UserName
	if userName == s.opts.AdminName {
		return nil, apperror.Forbidden("The admin account cannot be closed.")
	}

	err = s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		if err := verifyIdentity(ctx, st, id); err != nil {
			return err
		}
		return s.deleteAccount(ctx, st, userName)
	})
	if err != nil {
		return nil, err
	}

	sc.Reset()
	s.logger.Info("account closed", slog.String("user", userName))
	return &model.MessageResult{Success: true, Message: "Your account has been closed."}, nil
}
