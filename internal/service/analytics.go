package service

import (
	"context"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Dashboard is a user's activity overview
type Dashboard struct {
	Properties          int64            `json:"properties"`
	PropertiesByStatus  map[string]int64 `json:"propertiesByStatus"`
	TotalViews          int64            `json:"totalViews"`
	Featured            int64            `json:"featured"`
	UnreadMessages      int64            `json:"unreadMessages"`
	ActiveMatches       int64            `json:"activeMatches"`
	ApprovedPayments    int64            `json:"approvedPayments"`
	ApprovedAmountTotal decimal.Decimal  `json:"approvedAmountTotal"`
}

type Analytics struct {
	db        *gorm.DB
	messaging *Messaging
}

func NewAnalytics(db *gorm.DB, messaging *Messaging) *Analytics {
	return &Analytics{db: db, messaging: messaging}
}

// Dashboard builds the overview for userID
func (s *Analytics) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	d := &Dashboard{}
	var err error

	owned := s.db.Where("user_id = ?", userID)
	if d.PropertiesByStatus, err = countBy(ctx, owned, &model.Property{}, "status"); err != nil {
		return nil, apperr.Internal("failed to count properties", err)
	}
	for _, n := range d.PropertiesByStatus {
		d.Properties += n
	}

	var totals struct {
		Views    int64
		Featured int64
	}
	if err := s.db.WithContext(ctx).Model(&model.Property{}).
		Select("COALESCE(SUM(views), 0) AS views, COALESCE(SUM(CASE WHEN featured THEN 1 ELSE 0 END), 0) AS featured").
		Where("user_id = ?", userID).
		Scan(&totals).Error; err != nil {
		return nil, apperr.Internal("failed to sum views", err)
	}
	d.TotalViews, d.Featured = totals.Views, totals.Featured

	if d.UnreadMessages, err = s.messaging.UnreadCount(ctx, userID); err != nil {
		return nil, apperr.Internal("failed to count unread messages", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.CommunityMatch{}).
		Where("(user1_id = ? OR user2_id = ?) AND status = ?", userID, userID, model.MatchActive).
		Count(&d.ActiveMatches).Error; err != nil {
		return nil, apperr.Internal("failed to count matches", err)
	}
	if d.ApprovedPayments, d.ApprovedAmountTotal, err = sumApproved(ctx, s.db, userID); err != nil {
		return nil, apperr.Internal("failed to sum payments", err)
	}
	return d, nil
}
