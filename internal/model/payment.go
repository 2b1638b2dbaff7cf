package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment purposes not covered by the subscription plans
const PurposeHighlight = "highlight"

// Payment statuses mirror MercadoPago's
const (
	PaymentPending  = "pending"
	PaymentApproved = "approved"
	PaymentRejected = "rejected"
)

// Payment is a checkout started by a user
type Payment struct {
	ID                 uint            `json:"id" gorm:"primaryKey"`
	UserID             uint            `json:"userId" gorm:"index;not null"`
	Purpose            string          `json:"purpose" gorm:"type:varchar(30);not null"`
	PropertyID         *uint           `json:"propertyId,omitempty" gorm:"index"`
	Amount             decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Currency           string          `json:"currency" gorm:"type:varchar(3);not null"`
	Status             string          `json:"status" gorm:"type:varchar(20);index;not null"`
	StatusDetail       string          `json:"statusDetail,omitempty" gorm:"type:varchar(100)"`
	ExternalReference  string          `json:"externalReference" gorm:"type:varchar(150);uniqueIndex;not null"`
	PreferenceID       string          `json:"preferenceId,omitempty" gorm:"type:varchar(100)"`
	ProviderPaymentID  string          `json:"providerPaymentId,omitempty" gorm:"type:varchar(50);index"`
	ApprovedAt         *time.Time      `json:"approvedAt,omitempty"`
	EntitlementGranted bool            `json:"entitlementGranted" gorm:"not null"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}
