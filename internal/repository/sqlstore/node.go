package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/accountkeeper/internal/apperror"
	"github.com/sakif/accountkeeper/internal/model"
)

// subtreeClause matches a node and all of its descendants. substr is used
// instead of LIKE so that "_" and "%" in a path are never wildcards.
const subtreeClause = `(path = ? OR substr(path, 1, ?) = ?)`

func subtreeArgs(p string) []any {
	prefix := p + "/"
	return []any{p, utf8.RuneCountInString(prefix), prefix}
}

// GetNode retrieves the node at p with all its properties.
// Returns apperror.ErrNotFound if no node exists at p.
func (q *queries) GetNode(ctx context.Context, p string) (*model.Node, error) {
	n, err := q.scanNode(q.db.QueryRowContext(ctx, q.bind(
		`SELECT n.id, n.path, n.owner, n.created_by, n.created_at
		 FROM nodes n WHERE n.path = ?`), p))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("node", p)
		}
		return nil, fmt.Errorf("sqlstore: getting node %s: %w", p, err)
	}

	if err := q.loadProperties(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

func (q *queries) NodeExists(ctx context.Context, p string) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx, q.bind(`SELECT COUNT(*) FROM nodes WHERE path = ?`), p).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("sqlstore: checking node %s: %w", p, err)
	}
	return count > 0, nil
}

// CreateNode inserts node and its properties. The UNIQUE constraint on path
// makes this a create-if-absent: when another writer got there first the
// insert affects no rows and the caller gets a Conflict.
func (q *queries) CreateNode(ctx context.Context, node *model.Node) error {
	if node.ID == "" {
		node.ID = xid.New().String()
	}
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now()
	}

	res, err := q.db.ExecContext(ctx, q.bind(
		`INSERT INTO nodes (id, path, parent_path, name, owner, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (path) DO NOTHING`),
		node.ID,
		node.Path,
		path.Dir(node.Path),
		path.Base(node.Path),
		node.Owner,
		node.CreatedBy,
		node.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlstore: inserting node %s: %w", node.Path, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: inserting node %s: %w", node.Path, err)
	}
	if affected == 0 {
		return apperror.Conflict("node", node.Path)
	}

	for name, v := range node.Properties {
		if err := q.upsertProperty(ctx, node.ID, name, v); err != nil {
			return err
		}
	}
	return nil
}

// SetProperty creates or replaces one property of the node at p.
func (q *queries) SetProperty(ctx context.Context, p, name string, value model.Value) error {
	var nodeID string
	err := q.db.QueryRowContext(ctx, q.bind(`SELECT id FROM nodes WHERE path = ?`), p).Scan(&nodeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("node", p)
		}
		return fmt.Errorf("sqlstore: setting %s on %s: %w", name, p, err)
	}
	return q.upsertProperty(ctx, nodeID, name, value)
}

func (q *queries) RemoveProperty(ctx context.Context, p, name string) error {
	_, err := q.db.ExecContext(ctx, q.bind(
		`DELETE FROM node_properties
		 WHERE name = ? AND node_id IN (SELECT id FROM nodes WHERE path = ?)`),
		name, p,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: removing %s from %s: %w", name, p, err)
	}
	return nil
}

// ClearPropertyIf deletes the property only while it still equals expected.
// Two concurrent callers with the same expected value cannot both succeed.
func (q *queries) ClearPropertyIf(ctx context.Context, p, name string, expected model.Value) (bool, error) {
	col, err := valueColumn(expected.Kind)
	if err != nil {
		return false, err
	}

	res, err := q.db.ExecContext(ctx, q.bind(fmt.Sprintf(
		`DELETE FROM node_properties
		 WHERE name = ? AND kind = ? AND %s = ?
		   AND node_id IN (SELECT id FROM nodes WHERE path = ?)`, col)),
		name, string(expected.Kind), valueArg(expected), p,
	)
	if err != nil {
		return false, fmt.Errorf("sqlstore: clearing %s on %s: %w", name, p, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: clearing %s on %s: %w", name, p, err)
	}
	return affected > 0, nil
}

// DeleteSubtree removes the node at p, its descendants and their properties.
func (q *queries) DeleteSubtree(ctx context.Context, p string) (int64, error) {
	args := subtreeArgs(p)

	_, err := q.db.ExecContext(ctx, q.bind(
		`DELETE FROM node_properties WHERE node_id IN (
		     SELECT id FROM nodes WHERE `+subtreeClause+`)`),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: deleting properties under %s: %w", p, err)
	}

	res, err := q.db.ExecContext(ctx, q.bind(`DELETE FROM nodes WHERE `+subtreeClause), args...)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: deleting subtree %s: %w", p, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlstore: deleting subtree %s: %w", p, err)
	}
	return affected, nil
}

// ListChildren returns up to limit direct children of parent, oldest first.
func (q *queries) ListChildren(ctx context.Context, parent string, limit int) ([]model.Node, error) {
	rows, err := q.db.QueryContext(ctx, q.bind(
		`SELECT n.id, n.path, n.owner, n.created_by, n.created_at
		 FROM nodes n WHERE n.parent_path = ?
		 ORDER BY n.created_at, n.id
		 LIMIT ?`),
		parent, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: listing children of %s: %w", parent, err)
	}

	var nodes []model.Node
	for rows.Next() {
		n, err := q.scanNode(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlstore: scanning child of %s: %w", parent, err)
		}
		nodes = append(nodes, *n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlstore: iterating children of %s: %w", parent, err)
	}
	// Close before loading properties: sqlite runs on a single connection.
	rows.Close()

	for i := range nodes {
		if err := q.loadProperties(ctx, &nodes[i]); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// FindByProperty returns the first node strictly below root whose property
// name equals value, or nil if there is none.
func (q *queries) FindByProperty(ctx context.Context, root, name string, value model.Value) (*model.Node, error) {
	col, err := valueColumn(value.Kind)
	if err != nil {
		return nil, err
	}
	prefix := root + "/"

	n, err := q.scanNode(q.db.QueryRowContext(ctx, q.bind(fmt.Sprintf(
		`SELECT n.id, n.path, n.owner, n.created_by, n.created_at
		 FROM nodes n JOIN node_properties p ON p.node_id = n.id
		 WHERE substr(n.path, 1, ?) = ? AND p.name = ? AND p.kind = ? AND p.%s = ?
		 ORDER BY n.created_at
		 LIMIT 1`, col)),
		utf8.RuneCountInString(prefix), prefix, name, string(value.Kind), valueArg(value),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlstore: finding %s under %s: %w", name, root, err)
	}

	if err := q.loadProperties(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (q *queries) scanNode(s scanner) (*model.Node, error) {
	var (
		n         model.Node
		createdAt int64
	)
	if err := s.Scan(&n.ID, &n.Path, &n.Owner, &n.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	n.CreatedAt = time.UnixMilli(createdAt)
	return &n, nil
}

func (q *queries) loadProperties(ctx context.Context, n *model.Node) error {
	rows, err := q.db.QueryContext(ctx, q.bind(
		`SELECT name, kind, str_value, bool_value, int_value
		 FROM node_properties WHERE node_id = ?`), n.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: loading properties of %s: %w", n.Path, err)
	}
	defer rows.Close()

	n.Properties = make(model.Properties)
	for rows.Next() {
		var (
			name, kind string
			str        sql.NullString
			b          sql.NullBool
			i          sql.NullInt64
		)
		if err := rows.Scan(&name, &kind, &str, &b, &i); err != nil {
			return fmt.Errorf("sqlstore: scanning property of %s: %w", n.Path, err)
		}
		v := model.Value{Kind: model.Kind(kind)}
		switch v.Kind {
		case model.KindString:
			v.Str = str.String
		case model.KindBool:
			v.Bool = b.Bool
		case model.KindInt:
			v.Int = i.Int64
		}
		n.Properties[name] = v
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlstore: iterating properties of %s: %w", n.Path, err)
	}
	return nil
}

func (q *queries) upsertProperty(ctx context.Context, nodeID, name string, v model.Value) error {
	if _, err := valueColumn(v.Kind); err != nil {
		return err
	}
	str, b, i := valueArgs(v)
	_, err := q.db.ExecContext(ctx, q.bind(
		`INSERT INTO node_properties (node_id, name, kind, str_value, bool_value, int_value)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (node_id, name) DO UPDATE SET
		     kind = excluded.kind,
		     str_value = excluded.str_value,
		     bool_value = excluded.bool_value,
		     int_value = excluded.int_value`),
		nodeID, name, string(v.Kind), str, b, i,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: writing property %s: %w", name, err)
	}
	return nil
}

func valueColumn(k model.Kind) (string, error) {
	switch k {
	case model.KindString:
		return "str_value", nil
	case model.KindBool:
		return "bool_value", nil
	case model.KindInt:
		return "int_value", nil
	}
	return "", fmt.Errorf("sqlstore: unknown property kind %q", k)
}

func valueArgs(v model.Value) (sql.NullString, sql.NullBool, sql.NullInt64) {
	var (
		str sql.NullString
		b   sql.NullBool
		i   sql.NullInt64
	)
	switch v.Kind {
	case model.KindString:
		str = sql.NullString{String: v.Str, Valid: true}
	case model.KindBool:
		b = sql.NullBool{Bool: v.Bool, Valid: true}
	case model.KindInt:
		i = sql.NullInt64{Int64: v.Int, Valid: true}
	}
	return str, b, i
}

// valueArg returns the argument compared against v's value column.
func valueArg(v model.Value) any {
	str, b, i := valueArgs(v)
	switch v.Kind {
	case model.KindBool:
		return b
	case model.KindInt:
		return i
	}
	return str
}
