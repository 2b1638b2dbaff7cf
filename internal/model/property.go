package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Property statuses
const (
	PropertyAvailable   = "AVAILABLE"
	PropertyRented      = "RENTED"
	PropertySold        = "SOLD"
	PropertyMaintenance = "MAINTENANCE"
	PropertyReserved    = "RESERVED"
	PropertyExpired     = "EXPIRED"
	PropertySuspended   = "SUSPENDED"
)

var PropertyStatuses = []string{
	PropertyAvailable, PropertyRented, PropertySold, PropertyMaintenance,
	PropertyReserved, PropertyExpired, PropertySuspended,
}

var PropertyTypes = []string{"casa", "departamento", "ph", "local", "oficina", "terreno", "quinta"}

var OperationTypes = []string{"alquiler", "venta"}

const MaxPropertyImages = 10

// Property is a listing. Images holds object keys in the property-images bucket.
type Property struct {
	ID            uint                        `json:"id" gorm:"primaryKey"`
	UserID        uint                        `json:"userId" gorm:"index;not null"`
	Title         string                      `json:"title" gorm:"type:varchar(200);not null"`
	Description   string                      `json:"description" gorm:"type:text"`
	Price         decimal.Decimal             `json:"price" gorm:"type:numeric(14,2);not null"`
	Currency      string                      `json:"currency" gorm:"type:varchar(3);not null"`
	PropertyType  string                      `json:"propertyType" gorm:"type:varchar(20);index;not null"`
	Operation     string                      `json:"operation" gorm:"type:varchar(20);index;not null"`
	City          string                      `json:"city" gorm:"type:varchar(100);index;not null"`
	Province      string                      `json:"province" gorm:"type:varchar(100);not null"`
	Address       string                      `json:"address" gorm:"type:varchar(255)"`
	Bedrooms      int                         `json:"bedrooms"`
	Bathrooms     int                         `json:"bathrooms"`
	Area          float64                     `json:"area"`
	Status        string                      `json:"status" gorm:"type:varchar(20);index;not null"`
	Featured      bool                        `json:"featured" gorm:"index;not null"`
	FeaturedUntil *time.Time                  `json:"featuredUntil,omitempty"`
	Images        datatypes.JSONSlice[string] `json:"-"`
	Views         int                         `json:"views" gorm:"not null"`
	CreatedAt     time.Time                   `json:"createdAt" gorm:"index"`
	UpdatedAt     time.Time                   `json:"updatedAt"`
	DeletedAt     gorm.DeletedAt              `json:"-" gorm:"index"`
}

// Report reasons
var ReportReasons = []string{
	"scam", "fake_images", "unrealistic_price", "wrong_location",
	"not_available", "false_info", "duplicate", "other",
}

// Report statuses
const (
	ReportPending   = "PENDING"
	ReportResolved  = "RESOLVED"
	ReportDismissed = "DISMISSED"
)

// PropertyReport is a user complaint about a listing. A user reports a
// property at most once.
type PropertyReport struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	PropertyID uint       `json:"propertyId" gorm:"uniqueIndex:idx_report_property_reporter;not null"`
	ReporterID uint       `json:"reporterId" gorm:"uniqueIndex:idx_report_property_reporter;not null"`
	Reason     string     `json:"reason" gorm:"type:varchar(30);not null"`
	Details    string     `json:"details" gorm:"type:text;not null"`
	Status     string     `json:"status" gorm:"type:varchar(20);index;not null"`
	ReviewedBy *uint      `json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
