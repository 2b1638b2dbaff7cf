package model

import (
	"time"

	"gorm.io/gorm"
)

// User types
const (
	UserTypeInquilino    = "inquilino"
	UserTypeDuenoDirecto = "dueno_directo"
	UserTypeInmobiliaria = "inmobiliaria"
)

// User represents an account. ProfileImage holds the public avatar URL.
type User struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Name          string         `json:"name" gorm:"type:varchar(100);not null"`
	Email         string         `json:"email" gorm:"type:varchar(150);uniqueIndex;not null"`
	Phone         string         `json:"phone" gorm:"type:varchar(30)"`
	Password      string         `json:"-" gorm:"type:varchar(255);not null"`
	UserType      string         `json:"userType" gorm:"type:varchar(20);index;not null"`
	CompanyName   string         `json:"companyName,omitempty" gorm:"type:varchar(150)"`
	LicenseNumber string         `json:"licenseNumber,omitempty" gorm:"type:varchar(50)"`
	Bio           string         `json:"bio,omitempty" gorm:"type:text"`
	ProfileImage  string         `json:"profileImage,omitempty" gorm:"type:varchar(500)"`
	IsAdmin       bool           `json:"isAdmin" gorm:"not null"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`
}

// ValidUserType reports whether t is a known user type
func ValidUserType(t string) bool {
	switch t {
	case UserTypeInquilino, UserTypeDuenoDirecto, UserTypeInmobiliaria:
		return true
	}
	return false
}

// Subscription plans. They double as payment purposes.
const (
	PlanCommunityProfile = "community_profile"
	PlanPropertyPackage  = "property_package"
	PlanBasic            = "basic_plan"
	PlanPremium          = "premium_plan"
)

// Subscription statuses
const (
	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
)

// Subscription is a paid entitlement with an expiry
type Subscription struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"userId" gorm:"index;not null"`
	Plan      string    `json:"plan" gorm:"type:varchar(30);not null"`
	Status    string    `json:"status" gorm:"type:varchar(20);index;not null"`
	PaymentID *uint     `json:"paymentId,omitempty" gorm:"index"`
	StartsAt  time.Time `json:"startsAt"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"index"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActiveAt reports whether the subscription grants access at t
func (s Subscription) ActiveAt(t time.Time) bool {
	return s.Status == SubscriptionActive && !t.Before(s.StartsAt) && t.Before(s.ExpiresAt)
}
