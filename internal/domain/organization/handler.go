package organization

import (
	"context"
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

// RegisterRoutes wires organization routes. Lifecycle routes are
// superadmin-only and guarded in cmd wiring with auth.RequireKind; the
// settings routes additionally allow the organization's own admins.
func (h *Handler) RegisterRoutes(g *echo.Group, requireSuperadmin echo.MiddlewareFunc) {
	g.POST("/organizations", h.Create, requireSuperadmin)
	g.GET("/organizations", h.List, requireSuperadmin)
	g.GET("/organizations/:id", h.Get)
	g.POST("/organizations/:id/suspend", h.Suspend, requireSuperadmin)
	g.POST("/organizations/:id/reactivate", h.Reactivate, requireSuperadmin)
	g.DELETE("/organizations/:id", h.Delete, requireSuperadmin)
	g.PUT("/organizations/:id/settings/:key", h.SetSetting)
	g.GET("/organizations/:id/settings", h.ListSettings)
}

type createOrgRequest struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (h *Handler) Create(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req createOrgRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	org, err := h.service.Create(c.Request().Context(), req.Name, req.Slug, p.ID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, org)
}

func (h *Handler) Get(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organization id")
	}
	if err := auth.RequireOrganization(p, id); err != nil {
		return auth.HTTPError(err)
	}

	org, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, org)
}

func (h *Handler) List(c echo.Context) error {
	includeDeleted := c.QueryParam("include_deleted") == "true"
	orgs, err := h.service.List(c.Request().Context(), includeDeleted)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"organizations": orgs, "total": len(orgs)})
}

func (h *Handler) Suspend(c echo.Context) error {
	return h.lifecycle(c, h.service.Suspend)
}

func (h *Handler) Reactivate(c echo.Context) error {
	return h.lifecycle(c, h.service.Reactivate)
}

func (h *Handler) Delete(c echo.Context) error {
	return h.lifecycle(c, h.service.Delete)
}

func (h *Handler) lifecycle(c echo.Context, op func(ctx context.Context, id, actorID uuid.UUID) error) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organization id")
	}
	if err := op(c.Request().Context(), id, p.ID); err != nil {
		return auth.HTTPError(err)
	}
	org, err := h.service.Get(c.Request().Context(), id)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, org)
}

type setSettingRequest struct {
	Value string `json:"value"`
}

// SetSetting writes one setting. Organization admins may write their own
// organization's settings; superadmins may write any.
func (h *Handler) SetSetting(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organization id")
	}
	if err := auth.RequireOrganization(p, id); err != nil {
		return auth.HTTPError(err)
	}
	if !p.Superadmin && p.Role != "admin" {
		return echo.NewHTTPError(http.StatusForbidden, "only organization admins may change settings")
	}

	var req setSettingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	setting, err := h.service.SetSetting(c.Request().Context(), id, c.Param("key"), req.Value, p.ID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, setting)
}

func (h *Handler) ListSettings(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid organization id")
	}
	if err := auth.RequireOrganization(p, id); err != nil {
		return auth.HTTPError(err)
	}

	settings, err := h.service.ListSettings(c.Request().Context(), id)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"settings": settings, "total": len(settings)})
}
