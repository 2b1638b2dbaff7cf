package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
)

// UserHandler serves the caller's account, avatar, limits and listings
type UserHandler struct {
	users      *service.Users
	limits     *service.Limits
	properties *service.Properties
}

func NewUserHandler(users *service.Users, limits *service.Limits, properties *service.Properties) *UserHandler {
	return &UserHandler{users: users, limits: limits, properties: properties}
}

// GetProfile handles GET /api/users/profile
func (h *UserHandler) GetProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	user, err := h.users.Profile(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

// UpdateProfile handles PATCH /api/users/profile
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.ProfileInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	user, err := h.users.UpdateProfile(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("Profile updated")
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

// ChangePassword handles POST /api/users/change-password
func (h *UserHandler) ChangePassword(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.ChangePasswordInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	if err := h.users.ChangePassword(c.Request().Context(), userID, req); err != nil {
		return err
	}
	logger.FromEcho(c).Info("Password changed")
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Password updated"})
}

// UploadAvatar handles POST /api/users/avatar
func (h *UserHandler) UploadAvatar(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	// The optional userId field only exists for older clients and must
	// name the caller
	if raw := c.FormValue("userId"); raw != "" {
		claimed, err := parseUint(raw, "userId")
		if err != nil {
			return err
		}
		if claimed != userID {
			log.Warn("Avatar upload for another user rejected", zap.Uint("claimed_user_id", claimed))
			return apperr.Forbidden("you can only change your own avatar")
		}
	}

	file, err := formFile(c, "file", filevalidator.MaxAvatarSize)
	if err != nil {
		return err
	}
	result, err := h.users.UploadAvatar(c.Request().Context(), userID, file)
	if err != nil {
		return err
	}
	log.Info("Avatar uploaded", zap.String("url", result.OriginalURL))
	return c.JSON(http.StatusOK, result)
}

// GetAvatar handles GET /api/users/avatar
func (h *UserHandler) GetAvatar(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	url, err := h.users.Avatar(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"imageUrl": url})
}

// DeleteAvatar handles DELETE /api/users/avatar
func (h *UserHandler) DeleteAvatar(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.users.DeleteAvatar(c.Request().Context(), userID); err != nil {
		return err
	}
	logger.FromEcho(c).Info("Avatar removed")
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Avatar removed"})
}

// Limits handles GET /api/users/limits
func (h *UserHandler) Limits(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	summary, err := h.limits.UsageSummary(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

// MyProperties handles GET /api/users/properties
func (h *UserHandler) MyProperties(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	props, err := h.properties.ListMine(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"properties": props, "total": len(props)})
}
