package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregrid/caregrid/internal/platform/db"
	"github.com/caregrid/caregrid/internal/platform/errs"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepositoryPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orgCols = `id, name, slug, status, created_at, updated_at, deleted_at`

func scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.Slug, &o.Status, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repoPG) Create(ctx context.Context, org *Organization) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO organizations (id, name, slug, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		org.ID, org.Name, org.Slug, org.Status, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return scanOrg(r.conn(ctx).QueryRow(ctx, `
		SELECT `+orgCols+` FROM organizations WHERE id = $1`, id))
}

func (r *repoPG) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return scanOrg(r.conn(ctx).QueryRow(ctx, `
		SELECT `+orgCols+` FROM organizations WHERE slug = $1 AND status <> 'deleted'`, slug))
}

func (r *repoPG) List(ctx context.Context, includeDeleted bool) ([]*Organization, error) {
	query := `SELECT ` + orgCols + ` FROM organizations`
	if !includeDeleted {
		query += ` WHERE status <> 'deleted'`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.conn(ctx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.Slug, &o.Status, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	query := `UPDATE organizations SET status = $2, updated_at = now() WHERE id = $1`
	if status == StatusDeleted {
		query = `UPDATE organizations SET status = $2, updated_at = now(), deleted_at = now() WHERE id = $1`
	}
	tag, err := r.conn(ctx).Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update organization %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repoPG) UpsertSetting(ctx context.Context, s *Setting) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO organization_settings (organization_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		s.OrganizationID, s.Key, s.Value, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", s.Key, err)
	}
	return nil
}

func (r *repoPG) GetSetting(ctx context.Context, organizationID uuid.UUID, key string) (*Setting, error) {
	var s Setting
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT organization_id, key, value, updated_at
		FROM organization_settings
		WHERE organization_id = $1 AND key = $2`, organizationID, key).
		Scan(&s.OrganizationID, &s.Key, &s.Value, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) ListSettings(ctx context.Context, organizationID uuid.UUID) ([]*Setting, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT organization_id, key, value, updated_at
		FROM organization_settings
		WHERE organization_id = $1
		ORDER BY key ASC`, organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.OrganizationID, &s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
