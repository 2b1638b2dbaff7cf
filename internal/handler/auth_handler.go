package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
	"go.uber.org/zap"
)

// AuthHandler serves registration and login
type AuthHandler struct {
	users *service.Users
}

func NewAuthHandler(users *service.Users) *AuthHandler {
	return &AuthHandler{users: users}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromEcho(c)

	var req service.RegisterInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		prometheus.RecordAuthAttempt("register", err)
		return err
	}

	result, err := h.users.Register(c.Request().Context(), req)
	prometheus.RecordAuthAttempt("register", err)
	if err != nil {
		log.Warn("Registration failed", zap.String("user_type", req.UserType), zap.Error(err))
		return err
	}

	log.Info("User registered", zap.Uint("user_id", result.User.ID), zap.String("user_type", result.User.UserType))
	return c.JSON(http.StatusCreated, result)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromEcho(c)

	var req service.LoginInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		prometheus.RecordAuthAttempt("login", err)
		return err
	}

	result, err := h.users.Login(c.Request().Context(), req)
	prometheus.RecordAuthAttempt("login", err)
	if err != nil {
		log.Warn("Login failed", zap.Error(err))
		return err
	}

	log.Info("User logged in", zap.Uint("user_id", result.User.ID))
	return c.JSON(http.StatusOK, result)
}
