package model

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

// Notification types
const (
	NotificationNewMessage        = "new_message"
	NotificationNewMatch          = "new_match"
	NotificationNewLike           = "new_like"
	NotificationPropertyReport    = "property_report"
	NotificationPropertySuspended = "property_suspended"
	NotificationAdminReport       = "admin_report"
	NotificationPaymentApproved   = "payment_approved"
	NotificationPaymentRejected   = "payment_rejected"
	NotificationSystem            = "system"
)

var NotificationTypes = []string{
	NotificationNewMessage, NotificationNewMatch, NotificationNewLike,
	NotificationPropertyReport, NotificationPropertySuspended, NotificationAdminReport,
	NotificationPaymentApproved, NotificationPaymentRejected, NotificationSystem,
}

type Notification struct {
	ID        uint              `json:"id" gorm:"primaryKey"`
	UserID    uint              `json:"userId" gorm:"index;not null"`
	Type      string            `json:"type" gorm:"type:varchar(30);not null"`
	Title     string            `json:"title" gorm:"type:varchar(200);not null"`
	Message   string            `json:"message" gorm:"type:text"`
	Data      datatypes.JSONMap `json:"data,omitempty"`
	ReadAt    *time.Time        `json:"readAt" gorm:"index"`
	CreatedAt time.Time         `json:"createdAt" gorm:"index"`
}

// NotificationPreference holds per user channel switches. A missing row
// means the defaults from DefaultPreference.
type NotificationPreference struct {
	UserID     uint                        `json:"userId" gorm:"primaryKey;autoIncrement:false"`
	InApp      bool                        `json:"inApp" gorm:"not null"`
	Email      bool                        `json:"email" gorm:"not null"`
	Push       bool                        `json:"push" gorm:"not null"`
	MutedTypes datatypes.JSONSlice[string] `json:"mutedTypes"`
	UpdatedAt  time.Time                   `json:"updatedAt"`
}

func DefaultPreference(userID uint) NotificationPreference {
	return NotificationPreference{UserID: userID, InApp: true, Email: true, MutedTypes: []string{}}
}

// Mutes reports whether notifications of type t are silenced
func (p NotificationPreference) Mutes(t string) bool {
	return slices.Contains(p.MutedTypes, t)
}
