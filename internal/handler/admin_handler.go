package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
	"go.uber.org/zap"
)

// AdminHandler serves moderation. Every route sits behind RequireAdmin.
type AdminHandler struct {
	admin    *service.Admin
	payments *service.Payments
	limits   *service.Limits
}

func NewAdminHandler(admin *service.Admin, payments *service.Payments, limits *service.Limits) *AdminHandler {
	return &AdminHandler{admin: admin, payments: payments, limits: limits}
}

type suspendRequest struct {
	Suspended *bool `json:"suspended" validate:"required"`
}

type userTypeRequest struct {
	UserType string `json:"userType" validate:"required,oneof=inquilino dueno_directo inmobiliaria"`
}

// ListReports handles GET /api/admin/reports
func (h *AdminHandler) ListReports(c echo.Context) error {
	page, err := parsePage(c, defaultPageLimit, maxPageLimit)
	if err != nil {
		return err
	}
	reports, pagination, err := h.admin.ListReports(c.Request().Context(), strings.ToUpper(c.QueryParam("status")), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"reports": reports, "pagination": pagination})
}

// ReviewReport handles PUT /api/admin/reports/:id
func (h *AdminHandler) ReviewReport(c echo.Context) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req service.ReviewInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	report, err := h.admin.ReviewReport(c.Request().Context(), adminID, id, req)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("Report reviewed",
		zap.Uint("report_id", id),
		zap.String("status", req.Status),
		zap.Bool("restore_property", req.RestoreProperty))
	return c.JSON(http.StatusOK, echo.Map{"report": report})
}

// ListCommunityPosts handles GET /api/admin/community-posts
func (h *AdminHandler) ListCommunityPosts(c echo.Context) error {
	page, err := parsePage(c, 12, maxPageLimit)
	if err != nil {
		return err
	}
	filter := service.CommunityPostFilter{
		Search:    c.QueryParam("search"),
		Role:      c.QueryParam("role"),
		City:      c.QueryParam("city"),
		Status:    c.QueryParam("status"),
		SortBy:    c.QueryParam("sortBy"),
		SortOrder: c.QueryParam("sortOrder"),
	}
	// suspended=true|false predates the status filter
	suspended, err := queryBool(c, "suspended")
	if err != nil {
		return err
	}
	if suspended != nil && filter.Status == "" {
		filter.Status = "active"
		if *suspended {
			filter.Status = "suspended"
		}
	}

	ctx := c.Request().Context()
	posts, pagination, err := h.admin.ListCommunityPosts(ctx, filter, page)
	if err != nil {
		return err
	}
	stats, err := h.admin.CommunityPostStats(ctx)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"posts": posts, "pagination": pagination, "stats": stats})
}

// UpdateCommunityPost handles PUT /api/admin/community-posts/:id
func (h *AdminHandler) UpdateCommunityPost(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req suspendRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	post, err := h.admin.SetCommunityPostSuspended(c.Request().Context(), id, *req.Suspended)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("Community post moderated", zap.Uint("profile_id", id), zap.Bool("suspended", *req.Suspended))
	return c.JSON(http.StatusOK, echo.Map{"post": post})
}

// ListUsers handles GET /api/admin/users
func (h *AdminHandler) ListUsers(c echo.Context) error {
	page, err := parsePage(c, defaultPageLimit, maxPageLimit)
	if err != nil {
		return err
	}
	users, pagination, err := h.admin.ListUsers(c.Request().Context(), c.QueryParam("type"), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users, "pagination": pagination})
}

// SetUserType handles PUT /api/admin/users/:id/type. Listings beyond the
// caps of the new type are expired.
func (h *AdminHandler) SetUserType(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req userTypeRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	summary, err := h.limits.ApplyPlan(c.Request().Context(), id, req.UserType)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("User type changed", zap.Uint("user_id", id), zap.String("user_type", req.UserType))
	return c.JSON(http.StatusOK, echo.Map{"limits": summary})
}

// Stats handles GET /api/admin/stats
func (h *AdminHandler) Stats(c echo.Context) error {
	stats, err := h.admin.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// RefundPayment handles POST /api/admin/payments/:id/refund
func (h *AdminHandler) RefundPayment(c echo.Context) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	payment, err := h.payments.Refund(c.Request().Context(), id)
	if err != nil {
		return err
	}
	prometheus.RecordPayment(payment.Purpose, payment.Status)
	logger.FromEcho(c).Info("Payment refunded", zap.Uint("payment_id", id))
	return c.JSON(http.StatusOK, echo.Map{"payment": payment})
}
