package messaging

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists messages and the per-user read/archive relations.
// All message queries filter by organization id; the service always passes
// the scope's organization, never a caller-supplied one.
type Repository interface {
	Insert(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, organizationID, id uuid.UUID) (*Message, error)
	// ListByThread returns the thread's messages in ascending created_at
	// order, ties broken by id ascending.
	ListByThread(ctx context.Context, organizationID, threadID uuid.UUID) ([]*Message, error)
	// ListForUser returns every message in the organization where the user
	// is the sender or the recipient, broadcasts included.
	ListForUser(ctx context.Context, organizationID, userID uuid.UUID) ([]*Message, error)

	// MarkRead upserts the read relation. Re-marking is a no-op; read state
	// never transitions back to unread.
	MarkRead(ctx context.Context, messageID, userID uuid.UUID) error
	// Archive upserts the archive relation and reports whether the row was
	// newly created.
	Archive(ctx context.Context, messageID, userID uuid.UUID) (bool, error)
	// States returns the user's read/archive state for each given message.
	// Messages with no relation rows answer the zero State.
	States(ctx context.Context, userID uuid.UUID, messageIDs []uuid.UUID) (map[uuid.UUID]State, error)
}
