package messaging

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

// conn prefers the scope transaction so every messaging write commits or
// rolls back with the guarded operation.
func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const msgCols = `id, organization_id, from_user_id, to_user_id, thread_id, parent_message_id, subject, content, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.OrganizationID, &m.FromUserID, &m.ToUserID,
		&m.ThreadID, &m.ParentMessageID, &m.Subject, &m.Content, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]*Message, error) {
	defer rows.Close()
	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.FromUserID, &m.ToUserID,
			&m.ThreadID, &m.ParentMessageID, &m.Subject, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *repoPG) Insert(ctx context.Context, m *Message) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO messages (id, organization_id, from_user_id, to_user_id,
			thread_id, parent_message_id, subject, content, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.OrganizationID, m.FromUserID, m.ToUserID,
		m.ThreadID, m.ParentMessageID, m.Subject, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Message, error) {
	return scanMessage(r.conn(ctx).QueryRow(ctx, `
		SELECT `+msgCols+` FROM messages
		WHERE organization_id = $1 AND id = $2`, organizationID, id))
}

func (r *repoPG) ListByThread(ctx context.Context, organizationID, threadID uuid.UUID) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+msgCols+` FROM messages
		WHERE organization_id = $1 AND thread_id = $2
		ORDER BY created_at ASC, id ASC`, organizationID, threadID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (r *repoPG) ListForUser(ctx context.Context, organizationID, userID uuid.UUID) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+msgCols+` FROM messages
		WHERE organization_id = $1 AND (from_user_id = $2 OR to_user_id = $2 OR to_user_id IS NULL)
		ORDER BY created_at ASC, id ASC`, organizationID, userID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (r *repoPG) MarkRead(ctx context.Context, messageID, userID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO message_read_state (message_id, user_id, read_at)
		VALUES ($1, $2, now())
		ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return fmt.Errorf("mark message %s read: %w", messageID, err)
	}
	return nil
}

func (r *repoPG) Archive(ctx context.Context, messageID, userID uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO message_archive_state (message_id, user_id, archived_at)
		VALUES ($1, $2, now())
		ON CONFLICT (message_id, user_id) DO NOTHING`, messageID, userID)
	if err != nil {
		return false, fmt.Errorf("archive message %s: %w", messageID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) States(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) (map[uuid.UUID]State, error) {
	out := make(map[uuid.UUID]State, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT m.id,
			rs.message_id IS NOT NULL AS read,
			ar.message_id IS NOT NULL AS archived
		FROM messages m
		LEFT JOIN message_read_state rs ON rs.message_id = m.id AND rs.user_id = $1
		LEFT JOIN message_archive_state ar ON ar.message_id = m.id AND ar.user_id = $1
		WHERE m.id = ANY($2)`, userID, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var st State
		if err := rows.Scan(&id, &st.Read, &st.Archived); err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, rows.Err()
}
