package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AliasStore = (*AliasRepo)(nil)

// AliasRepo is the SQLite implementation of the AliasStore port.
type AliasRepo struct {
	w dbtx
	r dbtx
}

// NewAliasRepo creates an AliasRepo backed by the given DB.
func NewAliasRepo(db *DB) *AliasRepo {
	return &AliasRepo{w: db.Writer, r: db.Reader}
}

// Upsert inserts or replaces an alias mapping by its unique alias name.
func (r *AliasRepo) Upsert(ctx context.Context, alias model.DependencyAlias) error {
	if alias.ID == "" {
		alias.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO dependency_aliases (id, alias, canonical_name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(alias) DO UPDATE SET canonical_name = excluded.canonical_name
	`

	_, err := r.w.ExecContext(ctx, query, alias.ID, alias.Alias, alias.CanonicalName, fmtTime(alias.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert alias %s: %w", alias.Alias, err)
	}
	return nil
}

// GetByAlias resolves an alias. Returns nil, nil when no mapping exists.
func (r *AliasRepo) GetByAlias(ctx context.Context, alias string) (*model.DependencyAlias, error) {
	const query = `SELECT id, alias, canonical_name, created_at FROM dependency_aliases WHERE alias = ?`

	var (
		a         model.DependencyAlias
		createdAt string
	)
	err := r.r.QueryRowContext(ctx, query, alias).Scan(&a.ID, &a.Alias, &a.CanonicalName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alias %s: %w", alias, err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// ListAll returns every alias mapping ordered by alias.
func (r *AliasRepo) ListAll(ctx context.Context) ([]model.DependencyAlias, error) {
	const query = `SELECT id, alias, canonical_name, created_at FROM dependency_aliases ORDER BY alias`

	rows, err := r.r.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []model.DependencyAlias
	for rows.Next() {
		var (
			a         model.DependencyAlias
			createdAt string
		)
		if err := rows.Scan(&a.ID, &a.Alias, &a.CanonicalName, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		a.CreatedAt = parseTime(createdAt)
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

// Delete removes an alias mapping by alias name.
func (r *AliasRepo) Delete(ctx context.Context, alias string) error {
	if _, err := r.w.ExecContext(ctx, `DELETE FROM dependency_aliases WHERE alias = ?`, alias); err != nil {
		return fmt.Errorf("delete alias %s: %w", alias, err)
	}
	return nil
}
