package tenant

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregrid/caregrid/internal/platform/auth"
	"github.com/caregrid/caregrid/internal/platform/errs"
)

// HeaderOrganizationID names the header a patient or superadmin uses to
// pick the target organization. Organization members never need it: their
// scope is always their home organization.
const HeaderOrganizationID = "X-Organization-ID"

// MiddlewareConfig wires the scope middleware to the rest of the platform
// through plain funcs, which keeps this package free of domain imports.
type MiddlewareConfig struct {
	Guard *Guard
	// EnsureActiveOrg rejects suspended and deleted organizations.
	EnsureActiveOrg func(ctx context.Context, organizationID uuid.UUID) error
	// AuthorizePatient answers whether the patient holds an active grant
	// for the organization. Anything short of that must be ErrForbidden.
	AuthorizePatient func(ctx context.Context, patientID, organizationID uuid.UUID) error
}

// Middleware opens one tenant scope per request and runs the handler
// inside it. The target organization is derived from the principal, never
// from the request body:
//   - organization members are scoped to their home organization;
//   - patients name a target via the X-Organization-ID header and must
//     hold an active grant for it;
//   - superadmins name any target via the same header;
//   - platform users without the superadmin flag have no tenant affiliation
//     and cannot open a scope at all.
func Middleware(cfg MiddlewareConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			p := auth.PrincipalFromContext(ctx)
			if p == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			orgID, err := targetOrganization(c, p)
			if err != nil {
				return err
			}
			// Membership gate for everyone but patients, who are gated by
			// the grant check below instead.
			if err := auth.RequireOrganization(p, orgID); err != nil {
				return auth.HTTPError(err)
			}

			if err := cfg.EnsureActiveOrg(ctx, orgID); err != nil {
				return auth.HTTPError(err)
			}
			if p.Kind == auth.KindPatient && !p.Superadmin {
				if err := cfg.AuthorizePatient(ctx, p.ID, orgID); err != nil {
					return auth.HTTPError(err)
				}
			}

			scope := Scope{
				OrganizationID: orgID,
				ActingUserID:   p.ID,
				IsSuperadmin:   p.Superadmin,
			}
			err = cfg.Guard.RunInScope(ctx, scope, func(scoped context.Context) error {
				c.SetRequest(c.Request().WithContext(scoped))
				return next(c)
			})
			if err != nil {
				if _, ok := err.(*echo.HTTPError); ok {
					return err
				}
				return auth.HTTPError(err)
			}
			return nil
		}
	}
}

func targetOrganization(c echo.Context, p *auth.Principal) (uuid.UUID, error) {
	header := c.Request().Header.Get(HeaderOrganizationID)

	switch {
	case p.Kind == auth.KindOrgMember && !p.Superadmin:
		if p.HomeOrganizationID == nil {
			return uuid.Nil, auth.HTTPError(errs.ErrNoOrganizationContext)
		}
		return *p.HomeOrganizationID, nil
	default:
		if header == "" {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "X-Organization-ID header is required")
		}
		orgID, err := uuid.Parse(header)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid X-Organization-ID header")
		}
		return orgID, nil
	}
}
