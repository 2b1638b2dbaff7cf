package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
)

// NotificationHandler serves the in-app inbox and its preferences
type NotificationHandler struct {
	notifier *service.Notifier
}

func NewNotificationHandler(notifier *service.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

type preferencesRequest struct {
	InApp      *bool    `json:"inApp"`
	Email      *bool    `json:"email"`
	Push       *bool    `json:"push"`
	MutedTypes []string `json:"mutedTypes" validate:"omitempty,max=20"`
}

// List handles GET /api/notifications
func (h *NotificationHandler) List(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	unread, err := queryBool(c, "unread")
	if err != nil {
		return err
	}
	page, err := parsePage(c, defaultPageLimit, maxPageLimit)
	if err != nil {
		return err
	}
	list, err := h.notifier.List(c.Request().Context(), userID, unread != nil && *unread, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// MarkRead handles POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.notifier.MarkRead(c.Request().Context(), userID, id); err != nil {
		return err
	}
	prometheus.RecordNotificationOperation("read")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// MarkAllRead handles POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	updated, err := h.notifier.MarkAllRead(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	prometheus.RecordNotificationOperation("read_all")
	return c.JSON(http.StatusOK, echo.Map{"success": true, "updated": updated})
}

// Preferences handles GET /api/notifications/preferences
func (h *NotificationHandler) Preferences(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	pref, err := h.notifier.Preferences(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pref)
}

// UpdatePreferences handles PUT /api/notifications/preferences. Omitted
// fields keep their current value.
func (h *NotificationHandler) UpdatePreferences(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req preferencesRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	pref, err := h.notifier.Preferences(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	if req.InApp != nil {
		pref.InApp = *req.InApp
	}
	if req.Email != nil {
		pref.Email = *req.Email
	}
	if req.Push != nil {
		pref.Push = *req.Push
	}
	if req.MutedTypes != nil {
		pref.MutedTypes = req.MutedTypes
	}
	pref.UserID = userID

	updated, err := h.notifier.UpdatePreferences(c.Request().Context(), pref)
	if err != nil {
		return err
	}
	prometheus.RecordNotificationOperation("preferences")
	return c.JSON(http.StatusOK, updated)
}
