package grant

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// conn prefers the transaction bound to the context by the scope guard so
// grant reads and writes share the scoped transaction when one is open.
func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const grantCols = `id, patient_id, organization_id, status, created_at, revoked_at`

func scanGrant(row pgx.Row) (*AccessGrant, error) {
	var g AccessGrant
	err := row.Scan(&g.ID, &g.PatientID, &g.OrganizationID, &g.Status, &g.CreatedAt, &g.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *repoPG) Create(ctx context.Context, g *AccessGrant) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO access_grants (id, patient_id, organization_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		g.ID, g.PatientID, g.OrganizationID, g.Status, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert access grant: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*AccessGrant, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+grantCols+` FROM access_grants WHERE id = $1`, id)
	return scanGrant(row)
}

// GetByPatientAndOrg prefers the live row for the pair. With only revoked
// history the most recent revoked row is returned so callers can tell
// "was revoked" apart from "never granted".
func (r *repoPG) GetByPatientAndOrg(ctx context.Context, patientID, organizationID uuid.UUID) (*AccessGrant, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+grantCols+`
		FROM access_grants
		WHERE patient_id = $1 AND organization_id = $2
		ORDER BY CASE WHEN status <> 'revoked' THEN 0 ELSE 1 END, created_at DESC
		LIMIT 1`, patientID, organizationID)
	return scanGrant(row)
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessGrant, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+grantCols+`
		FROM access_grants
		WHERE patient_id = $1
		ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AccessGrant
	for rows.Next() {
		var g AccessGrant
		if err := rows.Scan(&g.ID, &g.PatientID, &g.OrganizationID, &g.Status, &g.CreatedAt, &g.RevokedAt); err != nil {
			return nil, err
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, revokedAt *time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE access_grants SET status = $2, revoked_at = $3 WHERE id = $1`,
		id, status, revokedAt)
	if err != nil {
		return fmt.Errorf("update access grant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
