package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewMemberPrefix marks ids the client made up for members not saved yet
const NewMemberPrefix = "temp-"

const maxMemberName = 100

// TeamMemberInput is the body of POST /api/inmobiliarias/team
type TeamMemberInput struct {
	Name         string `json:"name"`
	PhotoURL     string `json:"photo_url"`
	DisplayOrder int    `json:"display_order"`
}

// TeamMemberUpsert is one entry of a batch save. ID is either a saved
// member id or a NewMemberPrefix placeholder.
type TeamMemberUpsert struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	PhotoURL     *string `json:"photo_url"`
	DisplayOrder *int    `json:"display_order"`
	IsActive     *bool   `json:"is_active"`
}

// TeamLimitDetails is attached to a refused save
type TeamLimitDetails struct {
	CurrentCount int64 `json:"current_count"`
	MaxAllowed   int   `json:"max_allowed"`
}

func teamLimitErr(count int64) error {
	return apperr.BadRequest(fmt.Sprintf("at most %d active team members are allowed", model.MaxAgencyTeamMembers)).
		WithDetails(TeamLimitDetails{CurrentCount: count, MaxAllowed: model.MaxAgencyTeamMembers})
}

func memberName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperr.BadRequest("name is required")
	}
	if len([]rune(name)) > maxMemberName {
		return "", apperr.BadRequest(fmt.Sprintf("name must not exceed %d characters", maxMemberName))
	}
	return name, nil
}

// Team manages the members shown on an inmobiliaria profile
type Team struct {
	db *gorm.DB
}

func NewTeam(db *gorm.DB) *Team {
	return &Team{db: db}
}

// List returns the active members of agencyID in display order
func (s *Team) List(ctx context.Context, agencyID uint) ([]model.AgencyTeamMember, error) {
	members := []model.AgencyTeamMember{}
	if err := s.db.WithContext(ctx).
		Where("agency_id = ? AND is_active = ?", agencyID, true).
		Order("display_order ASC, id ASC").
		Find(&members).Error; err != nil {
		return nil, apperr.Internal("failed to list team members", err)
	}
	return members, nil
}

func (s *Team) requireAgency(ctx context.Context, db *gorm.DB, userID uint) error {
	var user model.User
	if err := db.WithContext(ctx).Select("id", "user_type").First(&user, userID).Error; err != nil {
		return lookupErr(err, "user")
	}
	if user.UserType != model.UserTypeInmobiliaria {
		return apperr.Forbidden("only inmobiliarias can manage a team")
	}
	return nil
}

func activeMembers(ctx context.Context, db *gorm.DB, agencyID uint) (int64, error) {
	var count int64
	if err := db.WithContext(ctx).Model(&model.AgencyTeamMember{}).
		Where("agency_id = ? AND is_active = ?", agencyID, true).
		Count(&count).Error; err != nil {
		return 0, apperr.Internal("failed to count team members", err)
	}
	return count, nil
}

// Add creates an active member for agencyID
func (s *Team) Add(ctx context.Context, agencyID uint, in TeamMemberInput) (*model.AgencyTeamMember, error) {
	name, err := memberName(in.Name)
	if err != nil {
		return nil, err
	}
	member := model.AgencyTeamMember{
		AgencyID:     agencyID,
		Name:         name,
		PhotoURL:     strings.TrimSpace(in.PhotoURL),
		DisplayOrder: in.DisplayOrder,
		IsActive:     true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireAgency(ctx, tx, agencyID); err != nil {
			return err
		}
		count, err := activeMembers(ctx, tx, agencyID)
		if err != nil {
			return err
		}
		if count >= model.MaxAgencyTeamMembers {
			return teamLimitErr(count)
		}
		if err := tx.Create(&member).Error; err != nil {
			return apperr.Internal("failed to create team member", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Team member added", zap.Uint("agency_id", agencyID), zap.Uint("member_id", member.ID))
	return &member, nil
}

// Save inserts new members and updates saved ones in one transaction. The
// agency may end with at most MaxAgencyTeamMembers active members.
func (s *Team) Save(ctx context.Context, agencyID uint, team []TeamMemberUpsert) ([]model.AgencyTeamMember, error) {
	names := make([]string, len(team))
	for i, m := range team {
		name, err := memberName(m.Name)
		if err != nil {
			return nil, err
		}
		names[i] = name
	}

	saved := make([]model.AgencyTeamMember, 0, len(team))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requireAgency(ctx, tx, agencyID); err != nil {
			return err
		}
		for i, m := range team {
			member, err := s.upsert(ctx, tx, agencyID, m, names[i])
			if err != nil {
				return err
			}
			saved = append(saved, *member)
		}
		count, err := activeMembers(ctx, tx, agencyID)
		if err != nil {
			return err
		}
		if count > model.MaxAgencyTeamMembers {
			return teamLimitErr(count)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Team saved", zap.Uint("agency_id", agencyID), zap.Int("members", len(saved)))
	return saved, nil
}

func (s *Team) upsert(ctx context.Context, tx *gorm.DB, agencyID uint, m TeamMemberUpsert, name string) (*model.AgencyTeamMember, error) {
	if strings.HasPrefix(m.ID, NewMemberPrefix) || m.ID == "" {
		member := model.AgencyTeamMember{AgencyID: agencyID, Name: name, IsActive: true}
		if m.PhotoURL != nil {
			member.PhotoURL = strings.TrimSpace(*m.PhotoURL)
		}
		if m.DisplayOrder != nil {
			member.DisplayOrder = *m.DisplayOrder
		}
		if m.IsActive != nil {
			member.IsActive = *m.IsActive
		}
		if err := tx.Create(&member).Error; err != nil {
			return nil, apperr.Internal("failed to create team member", err)
		}
		return &member, nil
	}

	id, err := strconv.ParseUint(m.ID, 10, 64)
	if err != nil || id == 0 {
		return nil, apperr.BadRequest("invalid team member id " + m.ID)
	}
	member, err := s.owned(ctx, tx, agencyID, uint(id))
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"name": name}
	if m.PhotoURL != nil {
		updates["photo_url"] = strings.TrimSpace(*m.PhotoURL)
	}
	if m.DisplayOrder != nil {
		updates["display_order"] = *m.DisplayOrder
	}
	if m.IsActive != nil {
		updates["is_active"] = *m.IsActive
	}
	if err := tx.Model(member).Updates(updates).Error; err != nil {
		return nil, apperr.Internal("failed to update team member", err)
	}
	if err := tx.First(member, member.ID).Error; err != nil {
		return nil, apperr.Internal("failed to reload team member", err)
	}
	return member, nil
}

func (s *Team) owned(ctx context.Context, db *gorm.DB, agencyID, memberID uint) (*model.AgencyTeamMember, error) {
	var member model.AgencyTeamMember
	err := db.WithContext(ctx).Where("id = ? AND agency_id = ?", memberID, agencyID).First(&member).Error
	if err != nil {
		return nil, lookupErr(err, "team member")
	}
	return &member, nil
}

// Remove deactivates a member of agencyID
func (s *Team) Remove(ctx context.Context, agencyID, memberID uint) error {
	member, err := s.owned(ctx, s.db, agencyID, memberID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Model(member).Update("is_active", false).Error; err != nil {
		return apperr.Internal("failed to remove team member", err)
	}
	logger.FromContext(ctx).Info("Team member removed", zap.Uint("agency_id", agencyID), zap.Uint("member_id", memberID))
	return nil
}
