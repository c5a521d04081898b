package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/xiaot623/gogo/gateway/internal/security"
)

// WidgetHandler manages constrained (widget) session registration. It is the
// only way a session becomes constrained.
type WidgetHandler struct {
	registry *security.Registry
}

// NewWidgetHandler creates a new widget session handler.
func NewWidgetHandler(registry *security.Registry) *WidgetHandler {
	return &WidgetHandler{registry: registry}
}

// RegisterRoutes registers widget session routes.
func (h *WidgetHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/internal/widget-sessions")
	g.PUT("/:session_id", h.Register)
	g.DELETE("/:session_id", h.Unregister)
	g.GET("/:session_id", h.Get)
}

type widgetStatus struct {
	SessionID   string `json:"session_id"`
	Constrained bool   `json:"constrained"`
}

// Register marks a session constrained.
// PUT /internal/widget-sessions/:session_id
func (h *WidgetHandler) Register(c echo.Context) error {
	id := c.Param("session_id")
	h.registry.Register(id)
	log.Info().Str("session_id", id).Msg("widget session registered")
	return c.JSON(http.StatusOK, widgetStatus{SessionID: id, Constrained: true})
}

// Unregister lifts the restriction.
// DELETE /internal/widget-sessions/:session_id
func (h *WidgetHandler) Unregister(c echo.Context) error {
	id := c.Param("session_id")
	h.registry.Unregister(id)
	log.Info().Str("session_id", id).Msg("widget session unregistered")
	return c.JSON(http.StatusOK, widgetStatus{SessionID: id, Constrained: false})
}

// Get reports whether a session is constrained.
// GET /internal/widget-sessions/:session_id
func (h *WidgetHandler) Get(c echo.Context) error {
	id := c.Param("session_id")
	return c.JSON(http.StatusOK, widgetStatus{SessionID: id, Constrained: h.registry.IsConstrained(id)})
}
