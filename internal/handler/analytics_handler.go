package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
)

type AnalyticsHandler struct {
	analytics *service.Analytics
}

func NewAnalyticsHandler(analytics *service.Analytics) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Dashboard handles GET /api/analytics/dashboard
func (h *AnalyticsHandler) Dashboard(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	dashboard, err := h.analytics.Dashboard(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, dashboard)
}
