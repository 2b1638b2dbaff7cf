package service

import (
	"context"
	"errors"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/events"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Notice is a notification to deliver
type Notice struct {
	UserID  uint
	Type    string
	Title   string
	Message string
	Data    map[string]interface{}
}

// Notifier stores in-app notifications and publishes them for the email
// and push workers
type Notifier struct {
	db        *gorm.DB
	publisher events.Publisher
	now       func() time.Time
}

func NewNotifier(db *gorm.DB, publisher events.Publisher) *Notifier {
	return &Notifier{db: db, publisher: publisher, now: time.Now}
}

// Preferences returns the stored preferences or the defaults
func (n *Notifier) Preferences(ctx context.Context, userID uint) (model.NotificationPreference, error) {
	var pref model.NotificationPreference
	err := n.db.WithContext(ctx).First(&pref, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.DefaultPreference(userID), nil
	}
	if err != nil {
		return pref, apperr.Internal("failed to load notification preferences", err)
	}
	if pref.MutedTypes == nil {
		pref.MutedTypes = []string{}
	}
	return pref, nil
}

// UpdatePreferences upserts pref
func (n *Notifier) UpdatePreferences(ctx context.Context, pref model.NotificationPreference) (model.NotificationPreference, error) {
	for _, t := range pref.MutedTypes {
		if !validNotificationType(t) {
			return pref, apperr.BadRequest("unknown notification type: " + t)
		}
	}
	if pref.MutedTypes == nil {
		pref.MutedTypes = []string{}
	}
	pref.UpdatedAt = n.now()
	err := n.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"in_app", "email", "push", "muted_types", "updated_at"}),
	}).Create(&pref).Error
	if err != nil {
		return pref, apperr.Internal("failed to save notification preferences", err)
	}
	return pref, nil
}

func validNotificationType(t string) bool {
	for _, known := range model.NotificationTypes {
		if known == t {
			return true
		}
	}
	return false
}

// Notify delivers notice according to the recipient's preferences. It
// returns the stored row, or nil when in-app delivery is off.
func (n *Notifier) Notify(ctx context.Context, notice Notice) (*model.Notification, error) {
	pref, err := n.Preferences(ctx, notice.UserID)
	if err != nil {
		return nil, err
	}
	if pref.Mutes(notice.Type) {
		return nil, nil
	}

	var row *model.Notification
	if pref.InApp {
		row = &model.Notification{
			UserID:  notice.UserID,
			Type:    notice.Type,
			Title:   notice.Title,
			Message: notice.Message,
			Data:    notice.Data,
		}
		if err := n.db.WithContext(ctx).Create(row).Error; err != nil {
			return nil, apperr.Internal("failed to store notification", err)
		}
	}

	if pref.InApp || pref.Email || pref.Push {
		payload := map[string]interface{}{
			"type":     notice.Type,
			"title":    notice.Title,
			"message":  notice.Message,
			"data":     notice.Data,
			"channels": map[string]bool{"in_app": pref.InApp, "email": pref.Email, "push": pref.Push},
		}
		if row != nil {
			payload["notification_id"] = row.ID
		}
		if err := n.publisher.Publish(ctx, events.NewEvent(events.TypeNotificationCreated, notice.UserID, payload)); err != nil {
			logger.FromContext(ctx).Warn("Failed to publish notification event",
				zap.Uint("user_id", notice.UserID),
				zap.String("type", notice.Type),
				zap.Error(err))
		}
	}
	return row, nil
}

// NotifyBestEffort is Notify for side effects that must not fail the caller
func (n *Notifier) NotifyBestEffort(ctx context.Context, notice Notice) {
	if _, err := n.Notify(ctx, notice); err != nil {
		logger.FromContext(ctx).Error("Failed to deliver notification",
			zap.Uint("user_id", notice.UserID),
			zap.String("type", notice.Type),
			zap.Error(err))
	}
}

// NotifyAdmins sends notice to every admin and returns how many were reached
func (n *Notifier) NotifyAdmins(ctx context.Context, notice Notice) (int, error) {
	var admins []uint
	if err := n.db.WithContext(ctx).Model(&model.User{}).Where("is_admin = ?", true).Pluck("id", &admins).Error; err != nil {
		return 0, apperr.Internal("failed to load admins", err)
	}
	sent := 0
	for _, id := range admins {
		notice.UserID = id
		if _, err := n.Notify(ctx, notice); err != nil {
			logger.FromContext(ctx).Error("Failed to notify admin", zap.Uint("admin_id", id), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// NotificationList is one page of notifications
type NotificationList struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int64                `json:"unreadCount"`
	Pagination    Pagination           `json:"pagination"`
}

// List returns the user's notifications, newest first
func (n *Notifier) List(ctx context.Context, userID uint, unreadOnly bool, page Page) (*NotificationList, error) {
	q := n.db.WithContext(ctx).Model(&model.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, apperr.Internal("failed to count notifications", err)
	}

	out := &NotificationList{Notifications: []model.Notification{}}
	if err := q.Session(&gorm.Session{}).Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&out.Notifications).Error; err != nil {
		return nil, apperr.Internal("failed to load notifications", err)
	}

	if err := n.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&out.UnreadCount).Error; err != nil {
		return nil, apperr.Internal("failed to count unread notifications", err)
	}
	out.Pagination = NewPagination(page, total)
	return out, nil
}

// MarkRead marks one notification of userID as read
func (n *Notifier) MarkRead(ctx context.Context, userID, id uint) error {
	var row model.Notification
	if err := n.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&row).Error; err != nil {
		return lookupErr(err, "notification")
	}
	if row.ReadAt != nil {
		return nil
	}
	if err := n.db.WithContext(ctx).Model(&row).Update("read_at", n.now()).Error; err != nil {
		return apperr.Internal("failed to mark notification read", err)
	}
	return nil
}

// MarkAllRead marks every unread notification of userID as read
func (n *Notifier) MarkAllRead(ctx context.Context, userID uint) (int64, error) {
	res := n.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", n.now())
	if res.Error != nil {
		return 0, apperr.Internal("failed to mark notifications read", res.Error)
	}
	return res.RowsAffected, nil
}
