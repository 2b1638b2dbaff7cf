package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
)

// PresenceHandler serves heartbeats and channel state
type PresenceHandler struct {
	presence *service.Presence
}

func NewPresenceHandler(presence *service.Presence) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

type trackRequest struct {
	Meta map[string]string `json:"meta" validate:"max=10"`
}

// Track handles POST /api/presence/:channel
func (h *PresenceHandler) Track(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req trackRequest
	// A heartbeat may come without a body
	if c.Request().ContentLength > 0 {
		if err := httpx.BindAndValidate(c, &req); err != nil {
			return err
		}
	}
	channel := c.Param("channel")
	joined, err := h.presence.Track(c.Request().Context(), userID, channel, req.Meta)
	if err != nil {
		return err
	}
	state, err := h.presence.State(c.Request().Context(), userID, channel)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"channel": channel, "joined": joined, "presences": state})
}

// Untrack handles DELETE /api/presence/:channel
func (h *PresenceHandler) Untrack(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	left, err := h.presence.Untrack(c.Request().Context(), userID, c.Param("channel"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"left": left})
}

// State handles GET /api/presence/:channel
func (h *PresenceHandler) State(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	channel := c.Param("channel")
	state, err := h.presence.State(c.Request().Context(), userID, channel)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"channel": channel, "presences": state})
}
