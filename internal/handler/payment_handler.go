package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Signature"
	maxWebhookBody  = 1 << 20
)

// PaymentHandler serves checkouts, provider notifications and payment lookups
type PaymentHandler struct {
	payments *service.Payments
}

func NewPaymentHandler(payments *service.Payments) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Checkout handles POST /api/payments/checkout
func (h *PaymentHandler) Checkout(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.CheckoutInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.payments.Checkout(c.Request().Context(), userID, req)
	if err != nil {
		log.Warn("Checkout failed", zap.String("purpose", req.Purpose), zap.Error(err))
		return err
	}
	prometheus.RecordPayment(req.Purpose, "pending")
	log.Info("Checkout created",
		zap.Uint("payment_id", result.PaymentID),
		zap.String("preference_id", result.PreferenceID),
		zap.String("purpose", req.Purpose))
	return c.JSON(http.StatusCreated, result)
}

// Webhook handles POST /api/payments/webhook. The raw body is needed for
// the signature so the request is never bound.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	log := logger.FromEcho(c)
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return apperr.BadRequest("failed to read notification body")
	}

	result, err := h.payments.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get(signatureHeader))
	if err != nil {
		log.Warn("Webhook rejected", zap.Error(err))
		return err
	}
	if result.Ignored {
		log.Debug("Webhook ignored")
		return c.JSON(http.StatusOK, echo.Map{"ignored": true})
	}
	prometheus.RecordPayment("webhook", result.Status)
	log.Info("Webhook processed",
		zap.Uint("payment_id", result.PaymentID),
		zap.String("status", result.Status),
		zap.Bool("entitlement_granted", result.EntitlementGrant))
	return c.JSON(http.StatusOK, result)
}

// List handles GET /api/payments
func (h *PaymentHandler) List(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	payments, err := h.payments.List(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"payments": payments})
}

// Get handles GET /api/payments/:id
func (h *PaymentHandler) Get(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	payment, err := h.payments.Get(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, payment)
}

// Status handles GET /api/payments/status/:id
func (h *PaymentHandler) Status(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	status, err := h.payments.Status(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// Methods handles GET /api/payments/methods
func (h *PaymentHandler) Methods(c echo.Context) error {
	methods, err := h.payments.Methods(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"methods": methods})
}
