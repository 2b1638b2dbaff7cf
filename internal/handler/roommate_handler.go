package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	mid "github.com/norbi4050/misiones-arrienda-sub010/internal/middleware"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
)

// RoommateHandler serves room sharing posts
type RoommateHandler struct {
	roommates *service.Roommates
}

func NewRoommateHandler(roommates *service.Roommates) *RoommateHandler {
	return &RoommateHandler{roommates: roommates}
}

func roommateFilter(c echo.Context) (service.RoommateFilter, error) {
	f := service.RoommateFilter{
		Query:    strings.TrimSpace(c.QueryParam("q")),
		City:     strings.TrimSpace(c.QueryParam("city")),
		Province: strings.TrimSpace(c.QueryParam("province")),
		RoomType: strings.ToUpper(strings.TrimSpace(c.QueryParam("roomType"))),
		Order:    strings.ToLower(strings.TrimSpace(c.QueryParam("order"))),
	}
	var err error
	if f.MinRent, err = queryInt(c, "minRent"); err != nil {
		return f, err
	}
	if f.MaxRent, err = queryInt(c, "maxRent"); err != nil {
		return f, err
	}
	if raw := c.QueryParam("availableFrom"); raw != "" {
		from, err := service.ParseDate(raw)
		if err != nil {
			return f, apperr.BadRequest("invalid availableFrom")
		}
		f.AvailableFrom = &from
	}
	return f, f.Validate()
}

// List handles GET /api/roommates
func (h *RoommateHandler) List(c echo.Context) error {
	f, err := roommateFilter(c)
	if err != nil {
		return err
	}
	page, err := parsePage(c, service.DefaultRoommatesLimit, service.MaxRoommatesLimit)
	if err != nil {
		return err
	}
	items, pagination, err := h.roommates.List(c.Request().Context(), f, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items":      items,
		"count":      pagination.Total,
		"filters":    f,
		"pagination": pagination,
	})
}

// Get handles GET /api/roommates/:slug
func (h *RoommateHandler) Get(c echo.Context) error {
	callerID, _ := mid.GetUserIDFromContext(c)
	post, err := h.roommates.Get(c.Request().Context(), callerID, c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, post)
}

// Create handles POST /api/roommates
func (h *RoommateHandler) Create(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.RoommateInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	post, err := h.roommates.Create(c.Request().Context(), userID, req)
	if err != nil {
		logger.FromEcho(c).Warn("Roommate post refused", zap.Error(err))
		return err
	}
	return c.JSON(http.StatusCreated, post)
}

// Publish handles POST /api/roommates/:slug/publish
func (h *RoommateHandler) Publish(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	post, err := h.roommates.Publish(c.Request().Context(), userID, c.Param("slug"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, post)
}
