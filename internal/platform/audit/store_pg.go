package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caregrid/caregrid/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type storePG struct{ pool *pgxpool.Pool }

// NewStorePG creates the Postgres-backed audit store. Writes issued inside
// a tenant scope run on the scope's transaction, so the entry commits and
// rolls back together with the operation it audits.
func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

const entryCols = `id, organization_id, actor_id, action, resource_type, resource_id, metadata, recorded_at`

func (s *storePG) Insert(ctx context.Context, e *Entry) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO audit_entries (id, organization_id, actor_id, action,
			resource_type, resource_id, metadata, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		e.ID, e.OrganizationID, e.ActorID, e.Action,
		e.ResourceType, e.ResourceID, e.Metadata, e.RecordedAt)
	return err
}

func (s *storePG) Select(ctx context.Context, f Filter) ([]*Entry, error) {
	query := `SELECT ` + entryCols + ` FROM audit_entries WHERE 1=1`
	var args []interface{}

	if f.OrganizationID != uuid.Nil {
		args = append(args, f.OrganizationID)
		query += fmt.Sprintf(" AND organization_id = $%d", len(args))
	}
	if f.ResourceID != "" {
		args = append(args, f.ResourceID)
		query += fmt.Sprintf(" AND resource_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND recorded_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND recorded_at <= $%d", len(args))
	}

	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY recorded_at DESC, id DESC LIMIT $%d", len(args))

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OrganizationID, &e.ActorID, &e.Action,
			&e.ResourceType, &e.ResourceID, &e.Metadata, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
