package service

import (
	"context"
	"fmt"

	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/repository"
	"github.com/sakif/accountkeeper/internal/session"
)

// SavePreferences stores the logged-in user's preferences and mirrors them
// into the session's cached copy. An empty LastVisitedNode removes the
// stored one. It never creates the preferences record: an account without
// one fails with NotFound.
func (s *AccountService) SavePreferences(ctx context.Context, sc *session.Context, prefs model.UserPreferences) (*model.MessageResult, error) {
	id, err := actingUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/preferences: %w", err)
	}
	userName := id.UserName

	err = s.store.RunPrivileged(ctx, func(ctx context.Context, st repository.Store) error {
		if err := verifyIdentity(ctx, st, id); err != nil {
			return err
		}
		// Preferences are created at activation only.
		node, err := st.GetNode(ctx, preferencesPath(userName))
		if err != nil {
			return err
		}
		if err := st.SetProperty(ctx, node.Path, model.PropAdvancedMode, model.Bool(prefs.AdvancedMode)); err != nil {
			return err
		}
		if prefs.LastVisitedNode == "" {
			return st.RemoveProperty(ctx, node.Path, model.PropLastVisitedNode)
		}
		return st.SetProperty(ctx, node.Path, model.PropLastVisitedNode, model.String(prefs.LastVisitedNode))
	})
	if err != nil {
		return nil, fmt.Errorf("service/preferences: saving for %s: %w", userName, err)
	}

	sc.Preferences = prefs
	return &model.MessageResult{Success: true, Message: "Preferences saved."}, nil
}
