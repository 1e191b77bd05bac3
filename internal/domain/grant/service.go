package grant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregrid/caregrid/internal/platform/audit"
	"github.com/caregrid/caregrid/internal/platform/errs"
)

// Service owns grant lifecycle transitions and answers authorization
// questions for patient data access. Every transition is recorded in the
// audit log before it is considered complete.
type Service struct {
	repo    Repository
	auditor *audit.Service
	cache   *activeGrantCache
	logger  zerolog.Logger
}

func NewService(repo Repository, auditor *audit.Service, cacheTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		cache:   newActiveGrantCache(cacheTTL),
		logger:  logger.With().Str("component", "grant").Logger(),
	}
}

// Create registers a pending grant for the patient/organization pair. The
// grant carries no permissions until activated. A live (pending or active)
// grant for the same pair already existing is a validation error; revoked
// history does not block a fresh grant.
func (s *Service) Create(ctx context.Context, patientID, organizationID uuid.UUID) (*AccessGrant, error) {
	if patientID == uuid.Nil || organizationID == uuid.Nil {
		return nil, fmt.Errorf("patient and organization are required: %w", errs.ErrValidation)
	}

	existing, err := s.repo.GetByPatientAndOrg(ctx, patientID, organizationID)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.Status != StatusRevoked {
		return nil, fmt.Errorf("grant already exists for this organization: %w", errs.ErrValidation)
	}

	g := &AccessGrant{
		ID:             uuid.New(),
		PatientID:      patientID,
		OrganizationID: organizationID,
		Status:         StatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, g); err != nil {
		return nil, err
	}

	if err := s.auditor.Append(ctx, &audit.Entry{
		OrganizationID: organizationID,
		ActorID:        patientID,
		Action:         "grant_created",
		ResourceType:   "access_grant",
		ResourceID:     g.ID.String(),
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// Get returns one grant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AccessGrant, error) {
	return s.repo.GetByID(ctx, id)
}

// Activate moves a pending grant to active. Activating a revoked grant is
// rejected: revocation is terminal and a new grant must be created.
func (s *Service) Activate(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*AccessGrant, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch g.Status {
	case StatusPending:
	case StatusActive:
		return g, nil
	case StatusRevoked:
		return nil, fmt.Errorf("revoked grants cannot be reactivated: %w", errs.ErrValidation)
	default:
		return nil, fmt.Errorf("unknown grant status %q: %w", g.Status, errs.ErrValidation)
	}

	if err := s.repo.UpdateStatus(ctx, id, StatusActive, nil); err != nil {
		return nil, err
	}
	g.Status = StatusActive
	s.cache.invalidate(g.PatientID)

	if err := s.auditor.Append(ctx, &audit.Entry{
		OrganizationID: g.OrganizationID,
		ActorID:        actorID,
		Action:         "grant_activated",
		ResourceType:   "access_grant",
		ResourceID:     g.ID.String(),
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// Revoke terminates a grant. Revoking an already revoked grant is a no-op.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID, actorID uuid.UUID) (*AccessGrant, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Status == StatusRevoked {
		return g, nil
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, StatusRevoked, &now); err != nil {
		return nil, err
	}
	g.Status = StatusRevoked
	g.RevokedAt = &now
	s.cache.invalidate(g.PatientID)

	if err := s.auditor.Append(ctx, &audit.Entry{
		OrganizationID: g.OrganizationID,
		ActorID:        actorID,
		Action:         "grant_revoked",
		ResourceType:   "access_grant",
		ResourceID:     g.ID.String(),
	}); err != nil {
		return nil, err
	}
	return g, nil
}

// CheckGrant reports the grant status for a patient/organization pair.
// Pairs with no history answer StatusNone. This always consults the
// repository; only the active-set fast path is cached.
func (s *Service) CheckGrant(ctx context.Context, patientID, organizationID uuid.UUID) (Status, error) {
	g, err := s.repo.GetByPatientAndOrg(ctx, patientID, organizationID)
	if errors.Is(err, errs.ErrNotFound) {
		return StatusNone, nil
	}
	if err != nil {
		return "", err
	}
	return g.Status, nil
}

// ListActiveGrants returns the organizations the patient currently grants
// access to. Results may be served from the TTL cache.
func (s *Service) ListActiveGrants(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	orgs, err := s.activeSet(ctx, patientID)
	if err != nil {
		return nil, err
	}
	out := make([]uuid.UUID, 0, len(orgs))
	for org := range orgs {
		out = append(out, org)
	}
	return out, nil
}

// ListByPatient returns the patient's full grant history, revoked rows
// included.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*AccessGrant, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

// Authorize answers whether the organization may access the patient's data
// right now. Anything short of an active grant is ErrForbidden, never
// ErrNotFound: callers must not be able to distinguish "no grant" from
// "revoked grant" from "patient unknown".
func (s *Service) Authorize(ctx context.Context, patientID, organizationID uuid.UUID) error {
	orgs, err := s.activeSet(ctx, patientID)
	if err != nil {
		return err
	}
	if !orgs[organizationID] {
		return fmt.Errorf("organization %s has no active grant for patient: %w", organizationID, errs.ErrForbidden)
	}
	return nil
}

func (s *Service) activeSet(ctx context.Context, patientID uuid.UUID) (map[uuid.UUID]bool, error) {
	if orgs, ok := s.cache.get(patientID); ok {
		return orgs, nil
	}
	grants, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	orgs := make(map[uuid.UUID]bool)
	for _, g := range grants {
		if g.Status == StatusActive {
			orgs[g.OrganizationID] = true
		}
	}
	s.cache.put(patientID, orgs)
	return orgs, nil
}
