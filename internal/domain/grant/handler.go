package grant

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregrid/caregrid/internal/platform/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/grants", h.Create)
	g.POST("/grants/:id/activate", h.Activate)
	g.POST("/grants/:id/revoke", h.Revoke)
	g.GET("/grants/check", h.Check)
	g.GET("/patients/:id/grants", h.ListByPatient)
	g.GET("/patients/:id/grants/active", h.ListActive)
}

type createGrantRequest struct {
	PatientID      uuid.UUID `json:"patient_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
}

// Create opens a pending grant. Patients may only open grants for
// themselves; organization members may only invite patients to their own
// organization.
func (h *Handler) Create(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req createGrantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	switch {
	case p.Superadmin:
	case p.Kind == auth.KindPatient:
		if req.PatientID != p.ID {
			return echo.NewHTTPError(http.StatusForbidden, "patients may only manage their own grants")
		}
	case p.Kind == auth.KindOrgMember:
		if p.HomeOrganizationID == nil || req.OrganizationID != *p.HomeOrganizationID {
			return echo.NewHTTPError(http.StatusForbidden, "members may only invite patients to their own organization")
		}
	default:
		return echo.NewHTTPError(http.StatusForbidden, "not permitted")
	}

	g, err := h.service.Create(c.Request().Context(), req.PatientID, req.OrganizationID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, g)
}

// Activate turns a pending grant on. Only the patient the grant belongs to
// (or a superadmin) may consent.
func (h *Handler) Activate(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grant id")
	}

	if !p.Superadmin {
		g, err := h.service.Get(c.Request().Context(), id)
		if err != nil {
			return auth.HTTPError(err)
		}
		if p.Kind != auth.KindPatient || g.PatientID != p.ID {
			return echo.NewHTTPError(http.StatusForbidden, "only the patient may activate a grant")
		}
	}

	g, err := h.service.Activate(c.Request().Context(), id, p.ID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, g)
}

// Revoke terminates a grant. The patient, a member of the granted
// organization, or a superadmin may revoke.
func (h *Handler) Revoke(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid grant id")
	}

	if !p.Superadmin {
		g, err := h.service.Get(c.Request().Context(), id)
		if err != nil {
			return auth.HTTPError(err)
		}
		ownPatient := p.Kind == auth.KindPatient && g.PatientID == p.ID
		ownOrg := p.Kind == auth.KindOrgMember && p.HomeOrganizationID != nil && g.OrganizationID == *p.HomeOrganizationID
		if !ownPatient && !ownOrg {
			return echo.NewHTTPError(http.StatusForbidden, "not permitted to revoke this grant")
		}
	}

	g, err := h.service.Revoke(c.Request().Context(), id, p.ID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, g)
}

type checkGrantResponse struct {
	PatientID      uuid.UUID `json:"patient_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Status         Status    `json:"status"`
}

// Check reports the grant status for a patient/organization pair. Members
// may only ask about their own organization.
func (h *Handler) Check(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	patientID, err := uuid.Parse(c.QueryParam("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	orgID, err := uuid.Parse(c.QueryParam("organization_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organization_id")
	}

	if !p.Superadmin {
		if err := auth.RequireOrganization(p, orgID); err != nil {
			return auth.HTTPError(err)
		}
		if p.Kind == auth.KindPatient && patientID != p.ID {
			return echo.NewHTTPError(http.StatusForbidden, "patients may only check their own grants")
		}
	}

	status, err := h.service.CheckGrant(c.Request().Context(), patientID, orgID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, checkGrantResponse{PatientID: patientID, OrganizationID: orgID, Status: status})
}

// ListByPatient returns the patient's full grant history.
func (h *Handler) ListByPatient(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if !p.Superadmin && p.ID != patientID {
		return echo.NewHTTPError(http.StatusForbidden, "patients may only list their own grants")
	}

	grants, err := h.service.ListByPatient(c.Request().Context(), patientID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"grants": grants, "total": len(grants)})
}

// ListActive returns the organizations the patient currently grants access
// to.
func (h *Handler) ListActive(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if !p.Superadmin && p.ID != patientID {
		return echo.NewHTTPError(http.StatusForbidden, "patients may only list their own grants")
	}

	orgs, err := h.service.ListActiveGrants(c.Request().Context(), patientID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"organizations": orgs, "total": len(orgs)})
}
