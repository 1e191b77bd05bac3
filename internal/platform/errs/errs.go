// Package errs defines the error taxonomy shared by the authorization and
// audit core. Services return these sentinels (usually wrapped with %w);
// HTTP handlers translate them with HTTPStatus.
package errs

import (
	"errors"
	"net/http"
)

var (
	// ErrUnauthenticated means no valid principal could be resolved.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrNoOrganizationContext means the principal lacks the tenant
	// affiliation required by an organization-scoped request.
	ErrNoOrganizationContext = errors.New("no organization context")

	// ErrForbidden means the principal is authenticated but not entitled.
	// It covers both "wrong tenant" and "no active grant" so that the
	// existence of rows in other tenants is never leaked.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the resource is genuinely absent within the
	// caller's own tenant.
	ErrNotFound = errors.New("not found")

	// ErrAuditWriteFailure means an audit append failed. Sensitive
	// operations must fail as a whole when they see this.
	ErrAuditWriteFailure = errors.New("audit write failure")

	// ErrValidation means malformed input, rejected before any store access.
	ErrValidation = errors.New("validation error")
)

// HTTPStatus maps a taxonomy error to its HTTP status code. Unknown errors
// map to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNoOrganizationContext):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
