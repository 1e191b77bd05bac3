package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregrid/caregrid/internal/platform/errs"
)

type identityStorePG struct{ pool *pgxpool.Pool }

// NewIdentityStorePG creates the Postgres-backed identity store. Identity
// lookup runs on the shared pool: it happens before any tenant scope is
// opened, so there is no scoped connection to inherit.
func NewIdentityStorePG(pool *pgxpool.Pool) IdentityStore {
	return &identityStorePG{pool: pool}
}

func (s *identityStorePG) Lookup(ctx context.Context, subjectID uuid.UUID) (*Identity, error) {
	var id Identity
	var kind string
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, kind, superadmin
		FROM users WHERE id = $1`, subjectID).
		Scan(&id.SubjectID, &id.Email, &kind, &id.Superadmin)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("subject %s: %w", subjectID, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	id.Kind = Kind(kind)

	rows, err := s.pool.Query(ctx, `
		SELECT organization_id, role
		FROM organization_members
		WHERE user_id = $1
		ORDER BY joined_at ASC`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.OrganizationID, &m.Role); err != nil {
			return nil, err
		}
		id.Memberships = append(id.Memberships, m)
	}
	return &id, rows.Err()
}
