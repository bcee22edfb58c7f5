package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/model"
)

// CreatePrincipalIfAbsent inserts p unless the name is taken.
//
// ON CONFLICT DO NOTHING keeps this a single statement, so two concurrent
// creators of the same name see exactly one "created".
func (q *queries) CreatePrincipalIfAbsent(ctx context.Context, p *model.Principal) (bool, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	res, err := q.db.ExecContext(ctx, q.bind(
		`INSERT INTO principals (name, password_hash, automated, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`),
		p.Name,
		p.PasswordHash,
		p.Automated,
		p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: inserting principal %s: %w", p.Name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: inserting principal %s: %w", p.Name, err)
	}
	return affected > 0, nil
}

// GetPrincipal returns apperror.ErrNotFound if no principal has that name.
func (q *queries) GetPrincipal(ctx context.Context, name string) (*model.Principal, error) {
	var (
		p         model.Principal
		createdAt int64
	)
	err := q.db.QueryRowContext(ctx, q.bind(
		`SELECT name, password_hash, automated, created_at
		 FROM principals WHERE name = ?`), name,
	).Scan(&p.Name, &p.PasswordHash, &p.Automated, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("principal", name)
		}
		return nil, fmt.Errorf("sqlstore: getting principal %s: %w", name, err)
	}
	p.CreatedAt = time.UnixMilli(createdAt)
	return &p, nil
}

func (q *queries) SetPrincipalSecret(ctx context.Context, name, passwordHash string) error {
	res, err := q.db.ExecContext(ctx, q.bind(
		`UPDATE principals SET password_hash = ? WHERE name = ?`), passwordHash, name)
	if err != nil {
		return fmt.Errorf("sqlstore: updating principal %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: updating principal %s: %w", name, err)
	}
	if affected == 0 {
		return apperror.NotFound("principal", name)
	}
	return nil
}

func (q *queries) DeletePrincipal(ctx context.Context, name string) error {
	if _, err := q.db.ExecContext(ctx, q.bind(`DELETE FROM principals WHERE name = ?`), name); err != nil {
		return fmt.Errorf("sqlstore: deleting principal %s: %w", name, err)
	}
	return nil
}
