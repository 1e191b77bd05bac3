package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/caregrid/caregrid/internal/platform/db"
	"github.com/caregrid/caregrid/internal/platform/errs"
)

// Action names recorded when a scope requires an audit trail of its own.
const (
	ActionSuperadminCrossTenantAccess = "superadmin_cross_tenant_access"
	ActionScopeEscalation             = "scope_escalation"
)

// Recorder writes scope-level audit entries. It is a narrow interface so the
// guard does not depend on the audit package (which itself reads the scope
// from context).
type Recorder interface {
	RecordScopeAccess(ctx context.Context, action string, organizationID, actorID uuid.UUID) error
}

// txBeginner is satisfied by *pgxpool.Pool.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Guard opens tenant scopes. All repository traffic of a guarded operation
// runs on a single transaction, so a failure midway leaves no row behind,
// in particular no row attributable to the wrong organization.
type Guard struct {
	db       txBeginner
	recorder Recorder
	logger   zerolog.Logger
}

// NewGuard creates a Guard on top of the shared connection pool.
func NewGuard(db txBeginner, recorder Recorder, logger zerolog.Logger) *Guard {
	return &Guard{db: db, recorder: recorder, logger: logger}
}

// RunInScope executes fn inside a fresh tenant scope. The scope and its
// transaction travel in the context handed to fn; repositories pick the
// transaction up via db.TxFromContext.
//
// Scopes do not nest: calling RunInScope while a scope is already active is
// rejected. Use Escalate for an explicit, audited sub-scope change.
//
// Superadmin scopes record a superadmin_cross_tenant_access audit entry
// before fn runs; if that append fails the operation never starts.
func (g *Guard) RunInScope(ctx context.Context, scope Scope, fn func(ctx context.Context) error) error {
	if _, active := ScopeFromContext(ctx); active {
		return fmt.Errorf("scope already active for this request: %w", errs.ErrForbidden)
	}
	return g.run(ctx, scope, ActionSuperadminCrossTenantAccess, fn)
}

// Escalate replaces an already-active scope with a new one for the duration
// of fn. The change is always audited, whatever the new scope's flags, since
// crossing from one organization scope into another mid-request is exactly
// the movement the audit trail exists to capture.
func (g *Guard) Escalate(ctx context.Context, scope Scope, fn func(ctx context.Context) error) error {
	prev, active := ScopeFromContext(ctx)
	if !active {
		return fmt.Errorf("escalation requires an active scope: %w", errs.ErrForbidden)
	}
	if !prev.IsSuperadmin {
		return fmt.Errorf("only superadmin scopes may escalate: %w", errs.ErrForbidden)
	}

	g.logger.Warn().
		Str("from_org", prev.OrganizationID.String()).
		Str("to_org", scope.OrganizationID.String()).
		Str("actor", scope.ActingUserID.String()).
		Msg("tenant scope escalation")

	if err := g.recorder.RecordScopeAccess(ctx, ActionScopeEscalation, scope.OrganizationID, scope.ActingUserID); err != nil {
		return fmt.Errorf("record scope escalation: %w", err)
	}

	return fn(WithScope(ctx, scope))
}

func (g *Guard) run(ctx context.Context, scope Scope, auditAction string, fn func(ctx context.Context) error) error {
	if scope.OrganizationID == uuid.Nil {
		return fmt.Errorf("scope requires an organization id: %w", errs.ErrValidation)
	}
	if scope.ActingUserID == uuid.Nil {
		return fmt.Errorf("scope requires an acting user id: %w", errs.ErrValidation)
	}

	tx, err := g.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin scoped transaction: %w", err)
	}
	// Rollback is a no-op after a successful commit; it also fires when fn
	// panics, so a partially-written scope never survives.
	defer tx.Rollback(ctx)

	scoped := WithScope(db.WithTx(ctx, tx), scope)

	if scope.IsSuperadmin {
		if err := g.recorder.RecordScopeAccess(scoped, auditAction, scope.OrganizationID, scope.ActingUserID); err != nil {
			return fmt.Errorf("record %s: %w", auditAction, err)
		}
	}

	if err := fn(scoped); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit scoped transaction: %w", err)
	}
	return nil
}
