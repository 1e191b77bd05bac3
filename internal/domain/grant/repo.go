package grant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists access grants. GetByPatientAndOrg returns the live
// (non-revoked) row for the pair when one exists, otherwise the most
// recently revoked one; implementations return errs.ErrNotFound when the
// pair has no history at all.
type Repository interface {
	Create(ctx context.Context, g *AccessGrant) error
	GetByID(ctx context.Context, id uuid.UUID) (*AccessGrant, error)
	GetByPatientAndOrg(ctx context.Context, patientID, organizationID uuid.UUID) (*AccessGrant, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessGrant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, revokedAt *time.Time) error
}
