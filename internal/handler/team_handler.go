package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/service"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
)

// TeamHandler serves the team members of an inmobiliaria
type TeamHandler struct {
	team *service.Team
}

func NewTeamHandler(team *service.Team) *TeamHandler {
	return &TeamHandler{team: team}
}

type saveTeamRequest struct {
	Team []service.TeamMemberUpsert `json:"team"`
}

// List handles GET /api/inmobiliarias/team?agency_id=
func (h *TeamHandler) List(c echo.Context) error {
	raw := c.QueryParam("agency_id")
	if raw == "" {
		return apperr.BadRequest("agency_id is required")
	}
	agencyID, err := parseUint(raw, "agency_id")
	if err != nil {
		return err
	}
	members, err := h.team.List(c.Request().Context(), agencyID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "team_members": members, "count": len(members)})
}

// Create handles POST /api/inmobiliarias/team
func (h *TeamHandler) Create(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req service.TeamMemberInput
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	member, err := h.team.Add(c.Request().Context(), userID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "team_member": member})
}

// Save handles PUT /api/inmobiliarias/team
func (h *TeamHandler) Save(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	var req saveTeamRequest
	if err := httpx.BindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Team == nil {
		return apperr.BadRequest("team must be an array of members")
	}
	members, err := h.team.Save(c.Request().Context(), userID, req.Team)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "team_members": members})
}

// Delete handles DELETE /api/inmobiliarias/team?id=
func (h *TeamHandler) Delete(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}
	raw := c.QueryParam("id")
	if raw == "" {
		return apperr.BadRequest("id is required")
	}
	memberID, err := parseUint(raw, "id")
	if err != nil {
		return err
	}
	if err := h.team.Remove(c.Request().Context(), userID, memberID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
