package mercadopago

import (
	"bytes"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Payment statuses reported by MercadoPago
const (
	StatusPending     = "pending"
	StatusApproved    = "approved"
	StatusAuthorized  = "authorized"
	StatusInProcess   = "in_process"
	StatusInMediation = "in_mediation"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// PreferenceItem is one line of a checkout preference
type PreferenceItem struct {
	ID          string          `json:"id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CurrencyID  string          `json:"currency_id"`
	CategoryID  string          `json:"category_id,omitempty"`
}

// MarshalJSON sends unit_price as a JSON number
func (i PreferenceItem) MarshalJSON() ([]byte, error) {
	type alias PreferenceItem
	return json.Marshal(struct {
		alias
		UnitPrice json.Number `json:"unit_price"`
	}{alias(i), json.Number(i.UnitPrice.StringFixed(2))})
}

type Payer struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

type BackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

type PaymentMethodsConfig struct {
	Installments        int `json:"installments,omitempty"`
	DefaultInstallments int `json:"default_installments,omitempty"`
}

// PreferenceRequest is the body of POST /checkout/preferences
type PreferenceRequest struct {
	Items              []PreferenceItem       `json:"items"`
	Payer              *Payer                 `json:"payer,omitempty"`
	BackURLs           *BackURLs              `json:"back_urls,omitempty"`
	AutoReturn         string                 `json:"auto_return,omitempty"`
	NotificationURL    string                 `json:"notification_url,omitempty"`
	ExternalReference  string                 `json:"external_reference,omitempty"`
	Expires            bool                   `json:"expires"`
	ExpirationDateFrom *time.Time             `json:"expiration_date_from,omitempty"`
	ExpirationDateTo   *time.Time             `json:"expiration_date_to,omitempty"`
	PaymentMethods     *PaymentMethodsConfig  `json:"payment_methods,omitempty"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Preference is the created checkout
type Preference struct {
	ID                string `json:"id"`
	InitPoint         string `json:"init_point"`
	SandboxInitPoint  string `json:"sandbox_init_point"`
	ExternalReference string `json:"external_reference"`
}

type Identification struct {
	Type   string `json:"type"`
	Number string `json:"number"`
}

type PaymentPayer struct {
	Email          string          `json:"email"`
	Identification *Identification `json:"identification,omitempty"`
}

// Payment as returned by GET /v1/payments/{id}
type Payment struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	CurrencyID        string          `json:"currency_id"`
	DateCreated       *time.Time      `json:"date_created,omitempty"`
	DateApproved      *time.Time      `json:"date_approved,omitempty"`
	Payer             PaymentPayer    `json:"payer"`
	ExternalReference string          `json:"external_reference"`
	PaymentMethodID   string          `json:"payment_method_id,omitempty"`
	PaymentTypeID     string          `json:"payment_type_id,omitempty"`
	Installments      int             `json:"installments,omitempty"`
}

// Refund as returned by POST /v1/payments/{id}/refunds
type Refund struct {
	ID        int64           `json:"id"`
	PaymentID int64           `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

type PaymentMethod struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	PaymentTypeID string `json:"payment_type_id"`
	Status        string `json:"status"`
}

// ResourceID accepts both numeric and string ids
type ResourceID string

func (id *ResourceID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		*id = ResourceID(s)
		return nil
	}
	*id = ResourceID(data)
	return nil
}

// Notification is the webhook body
type Notification struct {
	ID     ResourceID `json:"id"`
	Topic  string     `json:"topic"`
	Type   string     `json:"type"`
	Action string     `json:"action"`
	Data   struct {
		ID ResourceID `json:"id"`
	} `json:"data"`
}

// IsPayment reports whether the notification is about a payment
func (n Notification) IsPayment() bool {
	return n.Topic == "payment" || n.Type == "payment"
}

// PaymentID returns the referenced payment id
func (n Notification) PaymentID() string {
	if n.Data.ID != "" {
		return string(n.Data.ID)
	}
	return string(n.ID)
}
