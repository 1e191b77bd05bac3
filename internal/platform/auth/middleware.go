package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/caregrid/caregrid/internal/platform/errs"
)

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the resolved principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the resolved principal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey).(*Principal)
	return p
}

// Middleware resolves the bearer credential on every request and stores
// the principal on the request context. Requests without a resolvable
// principal are rejected with 401.
func Middleware(resolver *Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			p, err := resolver.Resolve(c.Request().Context(), parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
			}

			ctx := WithPrincipal(c.Request().Context(), p)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequireKind returns middleware admitting only principals of the given
// kinds. Superadmins pass regardless.
func RequireKind(kinds ...Kind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "no principal")
			}
			if p.Superadmin {
				return next(c)
			}
			for _, k := range kinds {
				if p.Kind == k {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "insufficient privileges")
		}
	}
}

// HTTPError converts a taxonomy error into an echo HTTP error, keeping the
// forbidden/not-found distinction out of cross-tenant responses.
func HTTPError(err error) *echo.HTTPError {
	status := errs.HTTPStatus(err)
	msg := http.StatusText(status)
	// Validation details are safe to surface; everything else is generic.
	if errors.Is(err, errs.ErrValidation) {
		msg = err.Error()
	}
	return echo.NewHTTPError(status, msg)
}
