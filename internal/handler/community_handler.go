package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/prometheus"
	"go.uber.org/zap"
)

// CommunityHandler serves roommate profiles, likes and matches
type CommunityHandler struct {
	community *service.Community
	matching  *service.Matching
}

func NewCommunityHandler(community *service.Community, matching *service.Matching) *CommunityHandler {
	return &CommunityHandler{community: community, matching: matching}
}

type likeRequest struct {
	ToUserID uint `json:"toUserId" validate:"required"`
}

type createMatchRequest struct {
	UserID uint `json:"userId" validate:"required"`
}

type updateMatchRequest struct {
	MatchID uint   `json:"matchId" validate:"required"`
	Status  string `json:"status" validate:"required,oneof=active archived blocked"`
}

// CreateProfile handles POST /api/community/profile
func (h *CommunityHandler) CreateProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.CommunityProfileInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	profile, err := h.community.CreateProfile(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("Community profile created", zap.Uint("profile_id", profile.ID), zap.String("role", profile.Role))
	return c.JSON(http.StatusCreated, echo.Map{"profile": profile})
}

// GetMyProfile handles GET /api/community/profile
func (h *CommunityHandler) GetMyProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	profile, err := h.community.MyProfile(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"profile": profile})
}

// UpdateProfile handles PUT /api/community/profile
func (h *CommunityHandler) UpdateProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.CommunityProfileInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	profile, err := h.community.UpdateProfile(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"profile": profile})
}

// DeleteProfile handles DELETE /api/community/profile
func (h *CommunityHandler) DeleteProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.community.DeleteProfile(c.Request().Context(), userID); err != nil {
		return err
	}
	logger.FromEcho(c).Info("Community profile deleted")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func communityFilter(c echo.Context) (service.CommunityFilter, error) {
	f := service.CommunityFilter{
		Role: strings.ToUpper(strings.TrimSpace(c.QueryParam("role"))),
		City: strings.TrimSpace(c.QueryParam("city")),
	}
	var err error
	if f.BudgetMin, err = queryInt(c, "budgetMin"); err != nil {
		return f, err
	}
	if f.BudgetMax, err = queryInt(c, "budgetMax"); err != nil {
		return f, err
	}
	if raw := c.QueryParam("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Tags = append(f.Tags, t)
			}
		}
	}
	return f, nil
}

// ListProfiles handles GET /api/community/profiles
func (h *CommunityHandler) ListProfiles(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	f, err := communityFilter(c)
	if err != nil {
		return err
	}
	page, err := parsePage(c, defaultPageLimit, maxPageLimit)
	if err != nil {
		return err
	}
	profiles, pagination, err := h.community.ListProfiles(c.Request().Context(), userID, f, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"profiles": profiles, "pagination": pagination})
}

// GetProfile handles GET /api/community/profiles/:id
func (h *CommunityHandler) GetProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	profile, err := h.community.GetProfile(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"profile": profile})
}

// UploadPhotos handles POST /api/community/profile/photos
func (h *CommunityHandler) UploadPhotos(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	files, err := formFiles(c, "files", model.MaxCommunityPhotos, filevalidator.MaxImageSize)
	if err != nil {
		return err
	}
	photos, err := h.community.UploadPhotos(c.Request().Context(), userID, files)
	if err != nil {
		return err
	}
	logger.FromEcho(c).Info("Community photos uploaded", zap.Int("count", len(files)))
	return c.JSON(http.StatusOK, echo.Map{"photos": photos})
}

// Like handles POST /api/community/likes
func (h *CommunityHandler) Like(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req likeRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	result, err := h.matching.Like(c.Request().Context(), userID, req.ToUserID)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
		prometheus.RecordMatchOperation("like")
	}
	return c.JSON(status, result)
}

// Unlike handles DELETE /api/community/likes/:userId
func (h *CommunityHandler) Unlike(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	otherID, err := paramID(c, "userId")
	if err != nil {
		return err
	}
	if err := h.matching.Unlike(c.Request().Context(), userID, otherID); err != nil {
		return err
	}
	prometheus.RecordMatchOperation("unlike")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ListMatches handles GET /api/comunidad/matches
func (h *CommunityHandler) ListMatches(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	page, err := parsePage(c, defaultPageLimit, maxPageLimit)
	if err != nil {
		return err
	}
	status := c.QueryParam("status")
	if status == "" {
		status = model.MatchActive
	}
	if status != model.MatchActive && status != model.MatchArchived {
		return apperr.BadRequest("status must be active or archived")
	}
	matches, pagination, err := h.matching.ListMatches(c.Request().Context(), userID, status, page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"matches": matches, "pagination": pagination})
}

// CreateMatch handles POST /api/comunidad/matches
func (h *CommunityHandler) CreateMatch(c echo.Context) error {
	log := logger.FromEcho(c)
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req createMatchRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	match, conversation, err := h.matching.CreateMatch(c.Request().Context(), userID, req.UserID)
	if err != nil {
		log.Info("Match refused", zap.Uint("other_user_id", req.UserID), zap.Error(err))
		return err
	}
	prometheus.RecordMatchOperation("match")
	log.Info("Match created", zap.Uint("match_id", match.ID), zap.Uint("conversation_id", conversation.ID))
	return c.JSON(http.StatusCreated, echo.Map{
		"success":      true,
		"match":        match,
		"conversation": conversation,
		"message":      "Match created",
	})
}

// UpdateMatch handles PUT /api/comunidad/matches
func (h *CommunityHandler) UpdateMatch(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req updateMatchRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	match, err := h.matching.UpdateMatchStatus(c.Request().Context(), userID, req.MatchID, req.Status)
	if err != nil {
		return err
	}
	prometheus.RecordMatchOperation("status_" + req.Status)
	logger.FromEcho(c).Info("Match status updated", zap.Uint("match_id", match.ID), zap.String("status", req.Status))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "match": match})
}
