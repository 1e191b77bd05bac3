package organization

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists organizations and their settings. Lookups return
// errs.ErrNotFound for unknown ids and slugs; deleted organizations are
// still returned by GetByID so callers can distinguish deleted from
// never-existed where they are allowed to.
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	List(ctx context.Context, includeDeleted bool) ([]*Organization, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	UpsertSetting(ctx context.Context, s *Setting) error
	GetSetting(ctx context.Context, organizationID uuid.UUID, key string) (*Setting, error)
	ListSettings(ctx context.Context, organizationID uuid.UUID) ([]*Setting, error)
}
