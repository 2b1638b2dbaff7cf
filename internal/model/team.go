package model

import "time"

// MaxAgencyTeamMembers caps the active members shown on an agency profile
const MaxAgencyTeamMembers = 2

// AgencyTeamMember is a person shown on an inmobiliaria's public profile.
// Removing a member only deactivates it.
type AgencyTeamMember struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	AgencyID     uint      `json:"agency_id" gorm:"index;not null"`
	Name         string    `json:"name" gorm:"type:varchar(100);not null"`
	PhotoURL     string    `json:"photo_url,omitempty" gorm:"type:varchar(500)"`
	DisplayOrder int       `json:"display_order" gorm:"not null"`
	IsActive     bool      `json:"is_active" gorm:"index;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
