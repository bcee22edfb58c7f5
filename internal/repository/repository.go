// Package repository declares the storage contracts the service layer
// depends on. Implementations live in sub-packages (see repository/sqlstore).
package repository

import (
	"context"

	"github.com/sakif/accountkeeper/internal/model"
)

// NodeStore is the hierarchical record store: path-addressed nodes carrying
// typed properties.
type NodeStore interface {
	// GetNode returns the node at path, or an apperror.ErrNotFound error.
	GetNode(ctx context.Context, path string) (*model.Node, error)
	NodeExists(ctx context.Context, path string) (bool, error)
	// CreateNode inserts node and its properties. It never overwrites: if a
	// node already exists at node.Path it returns an apperror.ErrConflict error.
	CreateNode(ctx context.Context, node *model.Node) error
	SetProperty(ctx context.Context, path, name string, value model.Value) error
	RemoveProperty(ctx context.Context, path, name string) error
	// ClearPropertyIf removes the property only if it still holds expected,
	// reporting whether it did.
	ClearPropertyIf(ctx context.Context, path, name string, expected model.Value) (bool, error)
	// DeleteSubtree removes the node at path and all its descendants.
	// Deleting a missing path is not an error; the count says what went.
	DeleteSubtree(ctx context.Context, path string) (int64, error)
	ListChildren(ctx context.Context, parent string, limit int) ([]model.Node, error)
	PropertyLookup
}

// PropertyLookup locates a record by property value.
type PropertyLookup interface {
	// FindByProperty searches the subtree under root for a node whose
	// property name equals value. It returns nil, nil when nothing matches.
	FindByProperty(ctx context.Context, root, name string, value model.Value) (*model.Node, error)
}

// PrincipalStore manages authentication identities.
type PrincipalStore interface {
	// CreatePrincipalIfAbsent inserts p unless a principal with the same
	// name exists, reporting whether it was created.
	CreatePrincipalIfAbsent(ctx context.Context, p *model.Principal) (bool, error)
	GetPrincipal(ctx context.Context, name string) (*model.Principal, error)
	SetPrincipalSecret(ctx context.Context, name, passwordHash string) error
	// DeletePrincipal removes the principal. A missing principal is not an error.
	DeletePrincipal(ctx context.Context, name string) error
}

// Store is the full set of operations available inside one unit of work.
type Store interface {
	NodeStore
	PrincipalStore
}

// Privileged runs units of work under the server's elevated store identity.
// Every write made through the Store handed to fn commits together, or not
// at all if fn returns an error.
type Privileged interface {
	Store
	RunPrivileged(ctx context.Context, fn func(ctx context.Context, store Store) error) error
}
