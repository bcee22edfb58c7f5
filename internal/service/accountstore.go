package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/model"
	"github.com/sakif/accountkeeper/internal/repository"
)

// The functions in this file are the typed accessors over the node store
// for the three account record kinds. They all take the Store of an open
// privileged unit of work; none of them commits.

// createAccountIfAbsent creates the principal for userName unless one
// exists, reporting whether it did. An existing principal is never touched.
func (s *AccountService) createAccountIfAbsent(ctx context.Context, st repository.Store, userName, password string, automated bool) (bool, error) {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return false, err
	}
	return st.CreatePrincipalIfAbsent(ctx, &model.Principal{
		Name:         userName,
		PasswordHash: hash,
		Automated:    automated,
		CreatedAt:    s.now(),
	})
}

// ensurePreferences returns the preferences record of userName, creating
// an empty one if needed.
func (s *AccountService) ensurePreferences(ctx context.Context, st repository.Store, userName string) (*model.Node, error) {
	return getOrCreate(ctx, st, &model.Node{
		Path:      preferencesPath(userName),
		Owner:     s.opts.AdminName,
		CreatedBy: s.opts.AdminName,
		Properties: model.Properties{
			model.PropUser: model.String(userName),
		},
	})
}

// ensureRoot returns the root record of userName, creating it owned by the
// user if needed.
func (s *AccountService) ensureRoot(ctx context.Context, st repository.Store, userName string) (*model.Node, error) {
	return getOrCreate(ctx, st, &model.Node{
		Path:      rootPath(userName),
		Owner:     userName,
		CreatedBy: s.opts.AdminName,
		Properties: model.Properties{
			model.PropContent: model.String("Root for User: " + userName),
		},
	})
}

// deleteAccount removes the principal, the root subtree and the preferences
// record. Records already gone are skipped.
func (s *AccountService) deleteAccount(ctx context.Context, st repository.Store, userName string) error {
	if err := st.DeletePrincipal(ctx, userName); err != nil {
		return err
	}
	if _, err := st.DeleteSubtree(ctx, rootPath(userName)); err != nil {
		return err
	}
	if _, err := st.DeleteSubtree(ctx, preferencesPath(userName)); err != nil {
		return err
	}
	return nil
}

// initNewUser takes userName from nothing to active: principal, root and
// preferences. It reports false, without writing, when the account is
// already active. A principal left without preferences by an interrupted
// creation is completed and its secret replaced.
func (s *AccountService) initNewUser(ctx context.Context, st repository.Store, userName, password, email, authService string, automated bool) (bool, error) {
	created, err := s.createAccountIfAbsent(ctx, st, userName, password, automated)
	if err != nil {
		return false, err
	}
	if !created {
		active, err := st.NodeExists(ctx, preferencesPath(userName))
		if err != nil {
			return false, err
		}
		if active {
			return false, nil
		}
		s.logger.Warn("completing half-created account")
		hash, err := s.passwords.Hash(password)
		if err != nil {
			return false, err
		}
		if err := st.SetPrincipalSecret(ctx, userName, hash); err != nil {
			return false, err
		}
	}

	if _, err := s.ensureRoot(ctx, st, userName); err != nil {
		return false, err
	}
	if _, err := s.ensurePreferences(ctx, st, userName); err != nil {
		return false, err
	}

	encrypted, err := s.cipher.Encrypt(password)
	if err != nil {
		return false, fmt.Errorf("encrypting password: %w", err)
	}

	p := preferencesPath(userName)
	props := []namedValue{
		{model.PropAuthService, model.String(authService)},
		{model.PropEncryptedPassword, model.String(encrypted)},
		{model.PropAdvancedMode, model.Bool(false)},
	}
	if email != "" {
		props = append(props, namedValue{model.PropEmail, model.String(email)})
	}
	for _, prop := range props {
		if err := st.SetProperty(ctx, p, prop.name, prop.value); err != nil {
			return false, err
		}
	}
	return true, nil
}

// applyPassword replaces the principal secret and the encrypted copy on the
// preferences record.
func (s *AccountService) applyPassword(ctx context.Context, st repository.Store, userName, password string) error {
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return err
	}
	if err := st.SetPrincipalSecret(ctx, userName, hash); err != nil {
		return err
	}

	if _, err := s.ensurePreferences(ctx, st, userName); err != nil {
		return err
	}
	encrypted, err := s.cipher.Encrypt(password)
	if err != nil {
		return fmt.Errorf("encrypting password: %w", err)
	}
	return st.SetProperty(ctx, preferencesPath(userName), model.PropEncryptedPassword, model.String(encrypted))
}

type namedValue struct {
	name  string
	value model.Value
}

// getOrCreate returns the node at n.Path, creating n there if absent.
func getOrCreate(ctx context.Context, st repository.Store, n *model.Node) (*model.Node, error) {
	existing, err := st.GetNode(ctx, n.Path)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, err
	}

	if err := st.CreateNode(ctx, n); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		// Lost a race with another creator; theirs is as good as ours.
		return st.GetNode(ctx, n.Path)
	}
	return n, nil
}
