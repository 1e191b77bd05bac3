package messaging

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/caregrid/caregrid/internal/platform/auth"
	"github.com/caregrid/caregrid/internal/platform/tenant"
)

// Handler exposes the messaging engine. All routes are registered behind
// the scope middleware, so every request arrives with an open tenant scope
// on its context.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/messages", h.Send)
	g.POST("/messages/:id/read", h.MarkRead)
	g.GET("/conversations", h.ListConversations)
	g.GET("/threads/:id", h.GetThread)
	g.POST("/threads/:id/archive", h.ArchiveThread)
}

type sendRequest struct {
	ToUserID        *uuid.UUID `json:"to_user_id,omitempty"`
	ThreadID        *uuid.UUID `json:"thread_id,omitempty"`
	ParentMessageID *uuid.UUID `json:"parent_message_id,omitempty"`
	Subject         string     `json:"subject"`
	Content         string     `json:"content"`
}

func (h *Handler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	m, err := h.service.Send(c.Request().Context(), SendRequest{
		ToUserID:        req.ToUserID,
		ThreadID:        req.ThreadID,
		ParentMessageID: req.ParentMessageID,
		Subject:         req.Subject,
		Content:         req.Content,
	})
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListConversations(c echo.Context) error {
	scope, ok := tenant.ScopeFromContext(c.Request().Context())
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "no tenant scope")
	}

	convs, err := h.service.ListConversations(c.Request().Context(), scope.ActingUserID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"conversations": convs, "total": len(convs)})
}

func (h *Handler) GetThread(c echo.Context) error {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid thread id")
	}

	msgs, err := h.service.GetThread(c.Request().Context(), threadID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"messages": msgs, "total": len(msgs)})
}

func (h *Handler) ArchiveThread(c echo.Context) error {
	threadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid thread id")
	}

	affected, err := h.service.ArchiveThread(c.Request().Context(), threadID)
	if err != nil {
		return auth.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"archived": affected})
}

func (h *Handler) MarkRead(c echo.Context) error {
	messageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid message id")
	}

	if err := h.service.MarkRead(c.Request().Context(), messageID); err != nil {
		return auth.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
