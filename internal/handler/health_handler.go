package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/database"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db      *gorm.DB
	service string
}

func NewHealthHandler(db *gorm.DB, service string) *HealthHandler {
	return &HealthHandler{db: db, service: service}
}

// HealthCheck handles GET /health. ?check=db also pings the database.
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	body := echo.Map{
		"status":    "healthy",
		"service":   h.service,
		"timestamp": time.Now().UTC(),
	}
	if c.QueryParam("check") != "db" {
		return c.JSON(http.StatusOK, body)
	}

	if err := database.Ping(c.Request().Context(), h.db); err != nil {
		logger.FromEcho(c).Error("Database health check failed", zap.Error(err))
		body["status"] = "unhealthy"
		body["database"] = "down"
		return c.JSON(http.StatusServiceUnavailable, body)
	}
	body["database"] = "up"
	return c.JSON(http.StatusOK, body)
}
