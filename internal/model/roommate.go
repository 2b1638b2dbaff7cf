package model

import (
	"time"

	"gorm.io/datatypes"
)

// Roommate room types
const (
	RoomPrivate = "PRIVATE"
	RoomShared  = "SHARED"
)

// Roommate post statuses
const (
	RoommateDraft     = "DRAFT"
	RoommatePublished = "PUBLISHED"
)

const MaxRoommateImages = 10

// RoommatePost is an offer of a room to share. Only published, active posts
// appear in the public feed.
type RoommatePost struct {
	ID            uint                        `json:"id" gorm:"primaryKey"`
	UserID        uint                        `json:"-" gorm:"index;not null"`
	Slug          string                      `json:"slug" gorm:"type:varchar(80);uniqueIndex;not null"`
	Title         string                      `json:"title" gorm:"type:varchar(100);not null"`
	Description   string                      `json:"description" gorm:"type:text;not null"`
	City          string                      `json:"city" gorm:"type:varchar(100);index;not null"`
	Province      string                      `json:"province" gorm:"type:varchar(100);not null"`
	RoomType      string                      `json:"roomType" gorm:"type:varchar(10);index;not null"`
	MonthlyRent   int                         `json:"monthlyRent" gorm:"index;not null"`
	AvailableFrom time.Time                   `json:"availableFrom" gorm:"index;not null"`
	Preferences   string                      `json:"preferences,omitempty" gorm:"type:text"`
	Images        datatypes.JSONSlice[string] `json:"images"`
	Status        string                      `json:"status" gorm:"type:varchar(10);index;not null"`
	IsActive      bool                        `json:"isActive" gorm:"index;not null"`
	LikesCount    int                         `json:"likesCount" gorm:"not null"`
	ViewsCount    int                         `json:"viewsCount" gorm:"not null"`
	PublishedAt   *time.Time                  `json:"publishedAt,omitempty" gorm:"index"`
	CreatedAt     time.Time                   `json:"createdAt"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
}

// Listed reports whether the post is visible in the public feed
func (p RoommatePost) Listed() bool {
	return p.Status == RoommatePublished && p.IsActive
}
