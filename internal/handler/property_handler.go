package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	mid "github.com/norbi4050/misiones-arrienda-sub010/internal/middleware"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PropertyHandler serves listings
type PropertyHandler struct {
	properties *service.Properties
}

func NewPropertyHandler(properties *service.Properties) *PropertyHandler {
	return &PropertyHandler{properties: properties}
}

func queryDecimal(c echo.Context, name string) (*decimal.Decimal, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, apperr.BadRequest("invalid " + name)
	}
	return &d, nil
}

func propertyFilter(c echo.Context) (service.PropertyFilter, error) {
	f := service.PropertyFilter{
		City:         strings.TrimSpace(c.QueryParam("city")),
		PropertyType: c.QueryParam("type"),
		Operation:    c.QueryParam("operation"),
		Status:       strings.ToUpper(c.QueryParam("status")),
	}
	var err error
	if f.MinPrice, err = queryDecimal(c, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryDecimal(c, "maxPrice"); err != nil {
		return f, err
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return f, apperr.BadRequest("minPrice must not exceed maxPrice")
	}
	if f.Bedrooms, err = queryInt(c, "bedrooms"); err != nil {
		return f, err
	}
	if f.Featured, err = queryBool(c, "featured"); err != nil {
		return f, err
	}
	return f, nil
}

// List handles GET /api/properties
func (h *PropertyHandler) List(c echo.Context) error {
	f, err := propertyFilter(c)
	if err != nil {
		return err
	}
	page, err := parsePage(c, defaultPageLimit, service.MaxPropertiesLimit)
	if err != nil {
		return err
	}
	props, pagination, err := h.properties.List(c.Request().Context(), f, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"properties": props, "pagination": pagination})
}

// Get handles GET /api/properties/:id
func (h *PropertyHandler) Get(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	callerID, _ := mid.GetUserIDFromContext(c)
	prop, err := h.properties.Get(c.Request().Context(), callerID, id)
	if err != nil {
		return err
	}
	if prop.UserID != callerID {
		prometheus.RecordPropertyView()
	}
	return c.JSON(http.StatusOK, prop)
}

// Create handles POST /api/properties
func (h *PropertyHandler) Create(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.PropertyInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	prop, err := h.properties.Create(c.Request().Context(), userID, req)
	if err != nil {
		log.Warn("Property creation refused", zap.Error(err))
		return err
	}
	prometheus.RecordPropertyOperation("create")
	log.Info("Property created", zap.Uint("property_id", prop.ID))
	return c.JSON(http.StatusCreated, prop)
}

// Update handles PUT /api/properties/:id
func (h *PropertyHandler) Update(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.PropertyInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	prop, err := h.properties.Update(c.Request().Context(), userID, id, req)
	if err != nil {
		return err
	}
	prometheus.RecordPropertyOperation("update")
	logger.FromEcho(c).Info("Property updated", zap.Uint("property_id", id))
	return c.JSON(http.StatusOK, prop)
}

// Delete handles DELETE /api/properties/:id
func (h *PropertyHandler) Delete(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.properties.Delete(c.Request().Context(), userID, id); err != nil {
		return err
	}
	prometheus.RecordPropertyOperation("delete")
	logger.FromEcho(c).Info("Property deleted", zap.Uint("property_id", id))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Property deleted"})
}

// UploadImages handles POST /api/properties/:id/images
func (h *PropertyHandler) UploadImages(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	files, err := formFiles(c, "files", model.MaxPropertyImages, filevalidator.MaxImageSize)
	if err != nil {
		return err
	}
	urls, err := h.properties.AddImages(c.Request().Context(), userID, id, files)
	if err != nil {
		return err
	}
	prometheus.RecordPropertyOperation("add_images")
	logger.FromEcho(c).Info("Property images uploaded", zap.Uint("property_id", id), zap.Int("count", len(files)))
	return c.JSON(http.StatusOK, echo.Map{"images": urls})
}

// Bulk handles POST /api/properties/bulk
func (h *PropertyHandler) Bulk(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.BulkInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.properties.Bulk(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	prometheus.RecordPropertyOperation("bulk_" + req.Action)
	logger.FromEcho(c).Info("Bulk property action",
		zap.String("action", req.Action),
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed))
	return c.JSON(http.StatusOK, result)
}

// Report handles POST /api/properties/:id/report
func (h *PropertyHandler) Report(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.ReportInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.properties.Report(c.Request().Context(), userID, id, req)
	if err != nil {
		return err
	}
	prometheus.RecordReport(req.Reason, result.AutoSuspended)
	logger.FromEcho(c).Info("Property reported",
		zap.Uint("property_id", id),
		zap.String("reason", req.Reason),
		zap.Bool("auto_suspended", result.AutoSuspended))
	return c.JSON(http.StatusCreated, result)
}
