package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/events"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserSummary is the public face of a user in lists
type UserSummary struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

func summarize(u model.User) UserSummary {
	return UserSummary{ID: u.ID, Name: u.Name, Avatar: u.ProfileImage}
}

func loadSummaries(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]UserSummary, error) {
	out := make(map[uint]UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []model.User
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = summarize(u)
	}
	return out, nil
}

// Matching handles likes and matches between community profiles
type Matching struct {
	db        *gorm.DB
	notifier  *Notifier
	publisher events.Publisher
	now       func() time.Time
}

func NewMatching(db *gorm.DB, notifier *Notifier, publisher events.Publisher) *Matching {
	return &Matching{db: db, notifier: notifier, publisher: publisher, now: time.Now}
}

// LikeResult is the outcome of Like
type LikeResult struct {
	Like    model.CommunityLike `json:"like"`
	Created bool                `json:"created"`
	Mutual  bool                `json:"mutual"`
}

// Like records fromID liking toID. Repeated likes are no-ops.
func (m *Matching) Like(ctx context.Context, fromID, toID uint) (*LikeResult, error) {
	if fromID == toID {
		return nil, apperr.BadRequest("you cannot like yourself")
	}
	var target model.User
	if err := m.db.WithContext(ctx).First(&target, toID).Error; err != nil {
		return nil, lookupErr(err, "user")
	}

	like := model.CommunityLike{FromUserID: fromID, ToUserID: toID}
	res := m.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&like)
	if res.Error != nil {
		return nil, apperr.Internal("failed to save like", res.Error)
	}
	result := &LikeResult{Created: res.RowsAffected > 0}
	if err := m.db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ?", fromID, toID).
		First(&result.Like).Error; err != nil {
		return nil, apperr.Internal("failed to load like", err)
	}

	var reverse int64
	if err := m.db.WithContext(ctx).Model(&model.CommunityLike{}).
		Where("from_user_id = ? AND to_user_id = ?", toID, fromID).
		Count(&reverse).Error; err != nil {
		return nil, apperr.Internal("failed to check reverse like", err)
	}
	result.Mutual = reverse > 0

	if result.Created {
		m.notifier.NotifyBestEffort(ctx, Notice{
			UserID:  toID,
			Type:    model.NotificationNewLike,
			Title:   "Someone liked your profile",
			Message: "A community member is interested in your profile",
			Data:    map[string]interface{}{"fromUserId": fromID, "mutual": result.Mutual},
		})
	}
	return result, nil
}

// Unlike removes fromID's like of toID
func (m *Matching) Unlike(ctx context.Context, fromID, toID uint) error {
	res := m.db.WithContext(ctx).
		Where("from_user_id = ? AND to_user_id = ?", fromID, toID).
		Delete(&model.CommunityLike{})
	if res.Error != nil {
		return apperr.Internal("failed to remove like", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("like not found")
	}
	return nil
}

// MatchView is a match seen from one participant
type MatchView struct {
	ID             uint                    `json:"id"`
	Status         string                  `json:"status"`
	CreatedAt      time.Time               `json:"created_at"`
	LastMessageAt  *time.Time              `json:"last_message_at"`
	ConversationID *uint                   `json:"conversation_id,omitempty"`
	User           *UserSummary            `json:"user"`
	Profile        *model.CommunityProfile `json:"profile"`
}

// ListMatches returns userID's matches with the given status, most recent
// conversation first
func (m *Matching) ListMatches(ctx context.Context, userID uint, status string, page Page) ([]MatchView, Pagination, error) {
	q := m.db.WithContext(ctx).Model(&model.CommunityMatch{}).
		Where("(user1_id = ? OR user2_id = ?) AND status = ?", userID, userID, status)

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to count matches", err)
	}

	var matches []model.CommunityMatch
	if err := q.Session(&gorm.Session{}).
		Order("last_message_at IS NULL, last_message_at DESC, created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&matches).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to load matches", err)
	}

	others := make([]uint, 0, len(matches))
	matchIDs := make([]uint, 0, len(matches))
	for _, match := range matches {
		others = append(others, match.Other(userID))
		matchIDs = append(matchIDs, match.ID)
	}
	users, err := loadSummaries(ctx, m.db, others)
	if err != nil {
		return nil, Pagination{}, apperr.Internal("failed to load users", err)
	}

	profiles := map[uint]model.CommunityProfile{}
	if len(others) > 0 {
		var rows []model.CommunityProfile
		if err := m.db.WithContext(ctx).Where("user_id IN ?", others).Find(&rows).Error; err != nil {
			return nil, Pagination{}, apperr.Internal("failed to load profiles", err)
		}
		for _, p := range rows {
			profiles[p.UserID] = p
		}
	}

	conversations := map[uint]uint{}
	if len(matchIDs) > 0 {
		var rows []model.Conversation
		if err := m.db.WithContext(ctx).Where("match_id IN ?", matchIDs).Find(&rows).Error; err != nil {
			return nil, Pagination{}, apperr.Internal("failed to load conversations", err)
		}
		for _, c := range rows {
			conversations[*c.MatchID] = c.ID
		}
	}

	views := make([]MatchView, 0, len(matches))
	for _, match := range matches {
		other := match.Other(userID)
		view := MatchView{
			ID:            match.ID,
			Status:        match.Status,
			CreatedAt:     match.CreatedAt,
			LastMessageAt: match.LastMessageAt,
		}
		if u, ok := users[other]; ok {
			view.User = &u
		}
		if p, ok := profiles[other]; ok {
			view.Profile = &p
		}
		if id, ok := conversations[match.ID]; ok {
			view.ConversationID = &id
		}
		views = append(views, view)
	}
	return views, NewPagination(page, total), nil
}

// CreateMatch matches callerID with otherID. Both need compatible community
// profiles and mutual likes. The match and its conversation are created
// together.
func (m *Matching) CreateMatch(ctx context.Context, callerID, otherID uint) (*model.CommunityMatch, *model.Conversation, error) {
	if callerID == otherID {
		return nil, nil, apperr.BadRequest("you cannot match with yourself")
	}

	var profiles []model.CommunityProfile
	if err := m.db.WithContext(ctx).Where("user_id IN ?", []uint{callerID, otherID}).Find(&profiles).Error; err != nil {
		return nil, nil, apperr.Internal("failed to load profiles", err)
	}
	var mine, theirs *model.CommunityProfile
	for i := range profiles {
		switch profiles[i].UserID {
		case callerID:
			mine = &profiles[i]
		case otherID:
			theirs = &profiles[i]
		}
	}
	if mine == nil || theirs == nil {
		return nil, nil, apperr.BadRequest("both users must have community profiles")
	}
	if !model.CompatibleRoles(mine.Role, theirs.Role) {
		return nil, nil, apperr.BadRequest("profiles are not compatible")
	}

	u1, u2 := model.OrderedPair(callerID, otherID)
	var existing int64
	if err := m.db.WithContext(ctx).Model(&model.CommunityMatch{}).
		Where("user1_id = ? AND user2_id = ?", u1, u2).
		Count(&existing).Error; err != nil {
		return nil, nil, apperr.Internal("failed to check existing match", err)
	}
	if existing > 0 {
		return nil, nil, apperr.BadRequest("a match already exists between these users")
	}

	var likes int64
	if err := m.db.WithContext(ctx).Model(&model.CommunityLike{}).
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)", callerID, otherID, otherID, callerID).
		Count(&likes).Error; err != nil {
		return nil, nil, apperr.Internal("failed to check likes", err)
	}
	if likes < 2 {
		return nil, nil, apperr.BadRequest("both users must like each other")
	}

	match := &model.CommunityMatch{User1ID: u1, User2ID: u2, Status: model.MatchActive}
	conversation := &model.Conversation{User1ID: u1, User2ID: u2, IsActive: true}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(match).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.BadRequest("a match already exists between these users")
			}
			return apperr.Internal("failed to create match", err)
		}
		conversation.MatchID = &match.ID
		if err := tx.Create(conversation).Error; err != nil {
			return apperr.Internal("failed to create conversation", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logger.FromContext(ctx).Info("Match created",
		zap.Uint("match_id", match.ID),
		zap.Uint("conversation_id", conversation.ID))

	if err := m.publisher.Publish(ctx, events.NewEvent(events.TypeMatchCreated, callerID, map[string]interface{}{
		"match_id": match.ID, "user1_id": u1, "user2_id": u2,
	})); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish match event", zap.Error(err))
	}
	m.notifier.NotifyBestEffort(ctx, Notice{
		UserID:  otherID,
		Type:    model.NotificationNewMatch,
		Title:   "New match",
		Message: "You have a new match, start chatting",
		Data:    map[string]interface{}{"matchId": match.ID, "conversationId": conversation.ID, "userId": callerID},
	})
	return match, conversation, nil
}

// UpdateMatchStatus changes the status of a match callerID takes part in.
// Blocking a match deactivates its conversation.
func (m *Matching) UpdateMatchStatus(ctx context.Context, callerID, matchID uint, status string) (*model.CommunityMatch, error) {
	switch status {
	case model.MatchActive, model.MatchArchived, model.MatchBlocked:
	default:
		return nil, apperr.BadRequest(fmt.Sprintf("invalid status: %s", status))
	}

	var match model.CommunityMatch
	if err := m.db.WithContext(ctx).First(&match, matchID).Error; err != nil {
		return nil, lookupErr(err, "match")
	}
	if !match.Involves(callerID) {
		return nil, apperr.Forbidden("you cannot modify this match")
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&match).Update("status", status).Error; err != nil {
			return apperr.Internal("failed to update match", err)
		}
		if err := tx.Model(&model.Conversation{}).Where("match_id = ?", match.ID).
			Update("is_active", status != model.MatchBlocked).Error; err != nil {
			return apperr.Internal("failed to update conversation", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	match.Status = status
	return &match, nil
}
