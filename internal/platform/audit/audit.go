// Package audit provides the append-only record of sensitive-resource
// access. Entries are written synchronously with the triggering operation
// and share its transaction; there is no update or delete path.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caregrid/caregrid/internal/platform/errs"
	"github.com/caregrid/caregrid/internal/platform/ids"
	"github.com/caregrid/caregrid/internal/platform/middleware"
)

// Entry is one immutable audit record. Metadata carries identifiers only,
// never clinical content.
type Entry struct {
	ID             string            `json:"id"`
	OrganizationID uuid.UUID         `json:"organization_id"`
	ActorID        uuid.UUID         `json:"actor_id"`
	Action         string            `json:"action"`
	ResourceType   string            `json:"resource_type"`
	ResourceID     string            `json:"resource_id"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RecordedAt     time.Time         `json:"recorded_at"`
}

// Filter selects entries for compliance review. OrganizationID is mandatory
// unless the requester is a superadmin.
type Filter struct {
	OrganizationID uuid.UUID
	ResourceID     string
	From           *time.Time
	To             *time.Time
	Limit          int
}

// Store persists entries. Select returns entries ordered by recorded_at
// descending, ties broken by id descending.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	Select(ctx context.Context, f Filter) ([]*Entry, error)
}

// Service is the audit log service.
type Service struct {
	store  Store
	logger zerolog.Logger
}

// NewService creates an audit service on top of the given store.
func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// DefaultQueryLimit bounds Query results when the filter gives no limit.
const DefaultQueryLimit = 100

// Append writes one entry. The write is synchronous and its failure is
// fatal to the caller: an unaudited sensitive access is a worse outcome
// than a failed request.
func (s *Service) Append(ctx context.Context, e *Entry) error {
	if err := s.validate(e); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	if err := s.store.Insert(ctx, e); err != nil {
		middleware.CountAuditFailure()
		return fmt.Errorf("append audit entry %s/%s: %v: %w",
			e.Action, e.ResourceType, err, errs.ErrAuditWriteFailure)
	}
	return nil
}

// AppendBestEffort writes one entry but never fails the caller. Reserved
// for non-sensitive listings where losing the entry is acceptable.
func (s *Service) AppendBestEffort(ctx context.Context, e *Entry) {
	if err := s.Append(ctx, e); err != nil {
		s.logger.Error().Err(err).
			Str("action", e.Action).
			Str("resource_type", e.ResourceType).
			Msg("best-effort audit append failed")
	}
}

// Query returns entries matching the filter, newest first. A zero
// OrganizationID is only allowed when the caller attests the requester is a
// superadmin (platform-wide review); everyone else names one organization.
func (s *Service) Query(ctx context.Context, f Filter, superadmin bool) ([]*Entry, error) {
	if f.OrganizationID == uuid.Nil && !superadmin {
		return nil, fmt.Errorf("audit query requires an organization id: %w", errs.ErrForbidden)
	}
	if f.Limit <= 0 || f.Limit > DefaultQueryLimit {
		f.Limit = DefaultQueryLimit
	}
	return s.store.Select(ctx, f)
}

// RecordScopeAccess implements tenant.Recorder: it writes the audit entry
// for a superadmin cross-tenant access or an explicit scope escalation.
func (s *Service) RecordScopeAccess(ctx context.Context, action string, organizationID, actorID uuid.UUID) error {
	return s.Append(ctx, &Entry{
		OrganizationID: organizationID,
		ActorID:        actorID,
		Action:         action,
		ResourceType:   "organization",
		ResourceID:     organizationID.String(),
	})
}

func (s *Service) validate(e *Entry) error {
	if e.OrganizationID == uuid.Nil {
		return fmt.Errorf("audit entry requires an organization id: %w", errs.ErrValidation)
	}
	if e.ActorID == uuid.Nil {
		return fmt.Errorf("audit entry requires an actor id: %w", errs.ErrValidation)
	}
	if e.Action == "" {
		return fmt.Errorf("audit entry requires an action: %w", errs.ErrValidation)
	}
	if e.ResourceType == "" {
		return fmt.Errorf("audit entry requires a resource type: %w", errs.ErrValidation)
	}
	return nil
}
