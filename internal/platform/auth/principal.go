// Package auth resolves inbound request credentials into typed principals
// and exposes the middleware that puts the principal on the request
// context. Resolution is a pure lookup; it has no side effects.
package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/caregrid/caregrid/internal/platform/errs"
)

// Kind classifies a principal.
type Kind string

const (
	KindPlatformUser Kind = "platform_user"
	KindOrgMember    Kind = "org_member"
	KindPatient      Kind = "patient"
)

// Principal identifies who is acting. It is built at request
// authentication, is immutable for the request's lifetime, and is never
// persisted.
type Principal struct {
	ID                 uuid.UUID  `json:"id"`
	Kind               Kind       `json:"kind"`
	HomeOrganizationID *uuid.UUID `json:"home_organization_id,omitempty"`
	Role               string     `json:"role,omitempty"`
	Superadmin         bool       `json:"superadmin"`
}

// Membership is one organization affiliation of an identity.
type Membership struct {
	OrganizationID uuid.UUID
	Role           string
}

// Identity is what the identity/session provider returns for a credential
// subject.
type Identity struct {
	SubjectID   uuid.UUID
	Email       string
	Kind        Kind
	Memberships []Membership
	Superadmin  bool
}

// IdentityStore is the identity/session provider the resolver consults.
// Implementations must return errs.ErrNotFound for unknown subjects.
type IdentityStore interface {
	Lookup(ctx context.Context, subjectID uuid.UUID) (*Identity, error)
}

// Resolver turns request credentials into principals.
type Resolver struct {
	tokens *TokenVerifier
	store  IdentityStore
}

// NewResolver creates a Resolver backed by the given token verifier and
// identity store.
func NewResolver(tokens *TokenVerifier, store IdentityStore) *Resolver {
	return &Resolver{tokens: tokens, store: store}
}

// Resolve verifies the credential and builds the principal. Any failure
// (bad token, unknown subject, malformed subject id) collapses to
// ErrUnauthenticated so callers cannot probe which part failed.
func (r *Resolver) Resolve(ctx context.Context, credential string) (*Principal, error) {
	claims, err := r.tokens.Verify(credential)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", errs.ErrUnauthenticated)
	}

	subjectID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse subject: %w", errs.ErrUnauthenticated)
	}

	identity, err := r.store.Lookup(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("lookup subject %s: %w", subjectID, errs.ErrUnauthenticated)
	}

	p := &Principal{
		ID:         identity.SubjectID,
		Kind:       identity.Kind,
		Superadmin: identity.Superadmin,
	}
	if len(identity.Memberships) > 0 && identity.Kind != KindPatient {
		home := identity.Memberships[0]
		orgID := home.OrganizationID
		p.HomeOrganizationID = &orgID
		p.Role = home.Role
	}
	return p, nil
}

// RequireOrganization checks that the principal may target the given
// organization. Patients pass here and are gated by the grant registry
// instead; superadmins pass and are audited by the scope guard.
func RequireOrganization(p *Principal, organizationID uuid.UUID) error {
	if p.Superadmin || p.Kind == KindPatient {
		return nil
	}
	if p.HomeOrganizationID == nil {
		return fmt.Errorf("principal %s has no organization affiliation: %w", p.ID, errs.ErrNoOrganizationContext)
	}
	if *p.HomeOrganizationID != organizationID {
		// Wrong tenant reads identically to a missing resource elsewhere.
		return fmt.Errorf("principal %s is not a member of the target organization: %w", p.ID, errs.ErrForbidden)
	}
	return nil
}
