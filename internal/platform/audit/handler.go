package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregrid/caregrid/internal/platform/auth"
	"github.com/caregrid/caregrid/pkg/pagination"
)

// Handler exposes the compliance review query. There is no write route:
// entries are only ever appended from inside business operations.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/audit", h.Query)
}

// Query lists audit entries newest first. Organization members are pinned
// to their own organization; only superadmins may query across tenants or
// omit the organization entirely.
func (h *Handler) Query(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	if p.Kind == auth.KindPatient && !p.Superadmin {
		return echo.NewHTTPError(http.StatusForbidden, "not permitted")
	}

	var f Filter
	if raw := c.QueryParam("organization_id"); raw != "" {
		orgID, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid organization_id")
		}
		f.OrganizationID = orgID
	}
	if !p.Superadmin {
		if p.HomeOrganizationID == nil {
			return echo.NewHTTPError(http.StatusForbidden, "no organization affiliation")
		}
		if f.OrganizationID != uuid.Nil && f.OrganizationID != *p.HomeOrganizationID {
			return echo.NewHTTPError(http.StatusForbidden, "not permitted")
		}
		f.OrganizationID = *p.HomeOrganizationID
	}

	f.ResourceID = c.QueryParam("resource_id")
	if raw := c.QueryParam("from"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
		}
		f.From = &ts
	}
	if raw := c.QueryParam("to"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be RFC3339")
		}
		f.To = &ts
	}
	f.Limit = pagination.FromContext(c).Limit

	entries, err := h.service.Query(c.Request().Context(), f, p.Superadmin)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, len(entries), f.Limit, 0))
}
