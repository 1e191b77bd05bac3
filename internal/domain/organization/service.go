package organization

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregrid/caregrid/internal/platform/audit"
	"github.com/caregrid/caregrid/internal/platform/errs"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Service owns the organization lifecycle. Lifecycle transitions are
// platform-level operations and are always audited.
type Service struct {
	repo    Repository
	auditor *audit.Service
	logger  zerolog.Logger
}

func NewService(repo Repository, auditor *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		logger:  logger.With().Str("component", "organization").Logger(),
	}
}

// Create provisions a new active organization.
func (s *Service) Create(ctx context.Context, name, slug string, actorID uuid.UUID) (*Organization, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" {
		return nil, fmt.Errorf("organization name is required: %w", errs.ErrValidation)
	}
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("slug must be lowercase letters, digits and hyphens: %w", errs.ErrValidation)
	}
	if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
		return nil, fmt.Errorf("slug %q is already taken: %w", slug, errs.ErrValidation)
	}

	now := time.Now().UTC()
	org := &Organization{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		return nil, err
	}

	if err := s.auditor.Append(ctx, &audit.Entry{
		OrganizationID: org.ID,
		ActorID:        actorID,
		Action:         "organization_created",
		ResourceType:   "organization",
		ResourceID:     org.ID.String(),
		Metadata:       map[string]string{"slug": slug},
	}); err != nil {
		return nil, err
	}

	s.logger.Info().Str("org_id", org.ID.String()).Str("slug", slug).Msg("organization created")
	return org, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetBySlug(ctx context.Context, slug string) (*Organization, error) {
	return s.repo.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
}

func (s *Service) List(ctx context.Context, includeDeleted bool) ([]*Organization, error) {
	return s.repo.List(ctx, includeDeleted)
}

// Suspend pauses an organization. Members cannot open scopes while
// suspended; data is untouched.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	return s.transition(ctx, id, actorID, StatusSuspended, "organization_suspended", StatusActive)
}

// Reactivate returns a suspended organization to active.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	return s.transition(ctx, id, actorID, StatusActive, "organization_reactivated", StatusSuspended)
}

// Delete logically deletes an organization. Rows stay in place for audit
// retention; the state is terminal.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	return s.transition(ctx, id, actorID, StatusDeleted, "organization_deleted", StatusActive, StatusSuspended)
}

func (s *Service) transition(ctx context.Context, id, actorID uuid.UUID, to Status, action string, from ...Status) error {
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if org.Status == to {
		return nil
	}
	allowed := false
	for _, f := range from {
		if org.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("cannot move organization from %s to %s: %w", org.Status, to, errs.ErrValidation)
	}

	if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
		return err
	}
	return s.auditor.Append(ctx, &audit.Entry{
		OrganizationID: id,
		ActorID:        actorID,
		Action:         action,
		ResourceType:   "organization",
		ResourceID:     id.String(),
	})
}

// EnsureActive gates scope opening: suspended organizations answer
// ErrForbidden, deleted and unknown ones ErrNotFound.
func (s *Service) EnsureActive(ctx context.Context, id uuid.UUID) error {
	org, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	switch org.Status {
	case StatusActive:
		return nil
	case StatusSuspended:
		return fmt.Errorf("organization %s is suspended: %w", id, errs.ErrForbidden)
	default:
		return fmt.Errorf("organization %s: %w", id, errs.ErrNotFound)
	}
}

// SetSetting writes one per-organization setting row.
func (s *Service) SetSetting(ctx context.Context, organizationID uuid.UUID, key, value string, actorID uuid.UUID) (*Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("setting key is required: %w", errs.ErrValidation)
	}
	if err := s.EnsureActive(ctx, organizationID); err != nil {
		return nil, err
	}

	setting := &Setting{
		OrganizationID: organizationID,
		Key:            key,
		Value:          value,
		UpdatedAt:      time.Now().UTC(),
	}
	if err := s.repo.UpsertSetting(ctx, setting); err != nil {
		return nil, err
	}

	s.auditor.AppendBestEffort(ctx, &audit.Entry{
		OrganizationID: organizationID,
		ActorID:        actorID,
		Action:         "organization_setting_updated",
		ResourceType:   "organization_setting",
		ResourceID:     key,
	})
	return setting, nil
}

func (s *Service) GetSetting(ctx context.Context, organizationID uuid.UUID, key string) (*Setting, error) {
	return s.repo.GetSetting(ctx, organizationID, key)
}

func (s *Service) ListSettings(ctx context.Context, organizationID uuid.UUID) ([]*Setting, error) {
	return s.repo.ListSettings(ctx, organizationID)
}
