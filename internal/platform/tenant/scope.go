// Package tenant implements the tenant isolation backbone: every data
// operation runs inside an explicit organization scope, and repositories
// derive the organization id for reads and writes from that scope value,
// never from caller-supplied payloads.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Scope is the ephemeral execution context of one guarded operation. It is
// created per request, passed explicitly, and never persisted.
type Scope struct {
	OrganizationID uuid.UUID
	ActingUserID   uuid.UUID
	IsSuperadmin   bool
}

type contextKey string

const scopeKey contextKey = "tenant_scope"

// WithScope returns a context carrying the given scope.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// ScopeFromContext retrieves the active scope, if any.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(scopeKey).(Scope)
	return s, ok
}
