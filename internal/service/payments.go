package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/events"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/mercadopago"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const preferenceLifetime = 24 * time.Hour

// PaymentGateway is the subset of the MercadoPago client the service uses
type PaymentGateway interface {
	CreatePreference(ctx context.Context, req *mercadopago.PreferenceRequest) (*mercadopago.Preference, error)
	GetPayment(ctx context.Context, paymentID string) (*mercadopago.Payment, error)
	CreateRefund(ctx context.Context, paymentID string, amount *decimal.Decimal) (*mercadopago.Refund, error)
	PaymentMethods(ctx context.Context) ([]mercadopago.PaymentMethod, error)
}

// PaymentsConfig holds the URLs and keys handed to the checkout
type PaymentsConfig struct {
	BaseURL       string
	PublicKey     string
	WebhookSecret string
}

var purposeTitles = map[string]string{
	model.PurposeHighlight:     "Destacar propiedad",
	model.PlanCommunityProfile: "Perfil de comunidad",
	model.PlanPropertyPackage:  "Paquete de propiedades",
	model.PlanBasic:            "Plan Básico Inmobiliaria",
	model.PlanPremium:          "Plan Premium Inmobiliaria",
}

// CheckoutInput is the body of POST /api/payments/checkout
type CheckoutInput struct {
	Purpose    string `json:"purpose" validate:"required,oneof=highlight community_profile property_package basic_plan premium_plan"`
	PropertyID *uint  `json:"propertyId"`
}

// CheckoutResult is what the client needs to open the checkout
type CheckoutResult struct {
	PaymentID        uint            `json:"paymentId"`
	PreferenceID     string          `json:"preferenceId"`
	InitPoint        string          `json:"initPoint"`
	SandboxInitPoint string          `json:"sandboxInitPoint"`
	PublicKey        string          `json:"publicKey"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
}

// WebhookResult summarizes a processed notification
type WebhookResult struct {
	Ignored          bool   `json:"ignored,omitempty"`
	PaymentID        uint   `json:"paymentId,omitempty"`
	Status           string `json:"status,omitempty"`
	EntitlementGrant bool   `json:"entitlementGranted,omitempty"`
}

// PaymentStatus is the customer facing status of a payment
type PaymentStatus struct {
	ID           uint   `json:"id"`
	Status       string `json:"status"`
	StatusDetail string `json:"statusDetail,omitempty"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	Purpose      string `json:"purpose"`
}

// Payments runs checkouts and applies provider notifications
type Payments struct {
	db        *gorm.DB
	gateway   PaymentGateway
	limits    *Limits
	notifier  *Notifier
	publisher events.Publisher
	cfg       PaymentsConfig
	now       func() time.Time
}

func NewPayments(db *gorm.DB, gateway PaymentGateway, limits *Limits, notifier *Notifier, publisher events.Publisher, cfg PaymentsConfig) *Payments {
	return &Payments{db: db, gateway: gateway, limits: limits, notifier: notifier, publisher: publisher, cfg: cfg, now: time.Now}
}

// Checkout creates a pending payment and its MercadoPago preference
func (s *Payments) Checkout(ctx context.Context, userID uint, in CheckoutInput) (*CheckoutResult, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	if in.Purpose == model.PurposeHighlight {
		check, err := s.limits.CanHighlight(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !check.Allowed {
			return nil, apperr.Forbidden(check.Reason)
		}
	}
	price, ok := Price(user.UserType, in.Purpose)
	if !ok {
		return nil, apperr.BadRequest(fmt.Sprintf("%s is not available for %s accounts", in.Purpose, user.UserType))
	}

	payment := model.Payment{
		UserID:            userID,
		Purpose:           in.Purpose,
		Amount:            price,
		Currency:          DefaultCurrency,
		Status:            model.PaymentPending,
		ExternalReference: fmt.Sprintf("%s-%d-%s", in.Purpose, userID, uuid.NewString()),
	}
	if in.Purpose == model.PurposeHighlight {
		if in.PropertyID == nil {
			return nil, apperr.BadRequest("propertyId is required to feature a property")
		}
		var p model.Property
		if err := s.db.WithContext(ctx).First(&p, *in.PropertyID).Error; err != nil {
			return nil, lookupErr(err, "property")
		}
		if p.UserID != userID {
			return nil, apperr.Forbidden("you do not own this property")
		}
		payment.PropertyID = &p.ID
	}

	if err := s.db.WithContext(ctx).Create(&payment).Error; err != nil {
		return nil, apperr.Internal("failed to create payment", err)
	}

	now := s.now()
	expires := now.Add(preferenceLifetime)
	metadata := map[string]interface{}{
		"payment_id": payment.ID,
		"user_id":    userID,
		"purpose":    in.Purpose,
	}
	if payment.PropertyID != nil {
		metadata["property_id"] = *payment.PropertyID
	}
	req := &mercadopago.PreferenceRequest{
		Items: []mercadopago.PreferenceItem{{
			ID:         in.Purpose,
			Title:      purposeTitles[in.Purpose],
			Quantity:   1,
			UnitPrice:  price,
			CurrencyID: payment.Currency,
		}},
		Payer: &mercadopago.Payer{Email: user.Email, Name: user.Name},
		BackURLs: &mercadopago.BackURLs{
			Success: s.cfg.BaseURL + "/payment/success",
			Failure: s.cfg.BaseURL + "/payment/failure",
			Pending: s.cfg.BaseURL + "/payment/pending",
		},
		AutoReturn:         "approved",
		NotificationURL:    s.cfg.BaseURL + "/api/payments/webhook",
		ExternalReference:  payment.ExternalReference,
		Expires:            true,
		ExpirationDateFrom: &now,
		ExpirationDateTo:   &expires,
		PaymentMethods:     &mercadopago.PaymentMethodsConfig{Installments: 12, DefaultInstallments: 1},
		Metadata:           metadata,
	}

	pref, err := s.gateway.CreatePreference(ctx, req)
	if err != nil {
		if uerr := s.db.WithContext(ctx).Model(&payment).Updates(map[string]interface{}{
			"status":        mercadopago.StatusCancelled,
			"status_detail": "preference_failed",
		}).Error; uerr != nil {
			logger.FromContext(ctx).Warn("Failed to cancel payment", zap.Uint("payment_id", payment.ID), zap.Error(uerr))
		}
		return nil, apperr.Internal("failed to create checkout", err)
	}
	if err := s.db.WithContext(ctx).Model(&payment).Update("preference_id", pref.ID).Error; err != nil {
		return nil, apperr.Internal("failed to save preference", err)
	}

	logger.FromContext(ctx).Info("Checkout created",
		zap.Uint("payment_id", payment.ID),
		zap.String("purpose", in.Purpose),
		zap.String("amount", price.StringFixed(2)))

	return &CheckoutResult{
		PaymentID:        payment.ID,
		PreferenceID:     pref.ID,
		InitPoint:        pref.InitPoint,
		SandboxInitPoint: pref.SandboxInitPoint,
		PublicKey:        s.cfg.PublicKey,
		Amount:           price,
		Currency:         payment.Currency,
	}, nil
}

// HandleWebhook verifies and applies a MercadoPago notification. The first
// transition to approved grants the entitlement; replays change nothing.
func (s *Payments) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	if !mercadopago.VerifySignature(payload, signature, s.cfg.WebhookSecret) {
		return nil, apperr.Unauthorized("invalid webhook signature")
	}
	var n mercadopago.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, apperr.BadRequest("invalid notification body")
	}
	if !n.IsPayment() || n.PaymentID() == "" {
		return &WebhookResult{Ignored: true}, nil
	}

	remote, err := s.gateway.GetPayment(ctx, n.PaymentID())
	if err != nil {
		return nil, apperr.Internal("failed to fetch payment", err)
	}

	var payment model.Payment
	if err := s.db.WithContext(ctx).Where("external_reference = ?", remote.ExternalReference).First(&payment).Error; err != nil {
		return nil, lookupErr(err, "payment")
	}

	previous := payment.Status
	if !mercadopago.CanTransition(previous, remote.Status) {
		logger.FromContext(ctx).Info("Stale payment notification ignored",
			zap.Uint("payment_id", payment.ID),
			zap.String("status", previous),
			zap.String("notified_status", remote.Status))
		return &WebhookResult{Ignored: true, PaymentID: payment.ID, Status: previous}, nil
	}

	granted := false
	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":              remote.Status,
			"status_detail":       remote.StatusDetail,
			"provider_payment_id": strconv.FormatInt(remote.ID, 10),
		}
		if remote.Status == mercadopago.StatusApproved && payment.ApprovedAt == nil {
			approved := now
			if remote.DateApproved != nil {
				approved = *remote.DateApproved
			}
			updates["approved_at"] = approved
		}
		if err := tx.Model(&model.Payment{}).Where("id = ?", payment.ID).Updates(updates).Error; err != nil {
			return apperr.Internal("failed to update payment", err)
		}
		if revokes(previous, remote.Status) {
			return s.revokeEntitlement(ctx, tx, payment)
		}
		if remote.Status != mercadopago.StatusApproved {
			return nil
		}

		res := tx.Model(&model.Payment{}).
			Where("id = ? AND entitlement_granted = ?", payment.ID, false).
			Update("entitlement_granted", true)
		if res.Error != nil {
			return apperr.Internal("failed to mark entitlement", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		granted = true
		return s.grantEntitlement(ctx, tx, payment, now)
	})
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	log.Info("Payment notification applied",
		zap.Uint("payment_id", payment.ID),
		zap.String("previous_status", previous),
		zap.String("status", remote.Status),
		zap.Bool("entitlement_granted", granted))

	if previous != remote.Status {
		if err := s.publisher.Publish(ctx, events.NewEvent(events.TypePaymentUpdated, payment.UserID, map[string]interface{}{
			"payment_id": payment.ID,
			"purpose":    payment.Purpose,
			"status":     remote.Status,
		})); err != nil {
			log.Warn("Failed to publish payment event", zap.Error(err))
		}
		s.notifyStatus(ctx, payment, remote.Status)
	}

	return &WebhookResult{PaymentID: payment.ID, Status: remote.Status, EntitlementGrant: granted}, nil
}

func (s *Payments) notifyStatus(ctx context.Context, payment model.Payment, status string) {
	amount := mercadopago.FormatAmount(payment.Amount, payment.Currency)
	switch status {
	case mercadopago.StatusApproved:
		s.notifier.NotifyBestEffort(ctx, Notice{
			UserID:  payment.UserID,
			Type:    model.NotificationPaymentApproved,
			Title:   "Payment approved",
			Message: fmt.Sprintf("Your payment of %s for %s was approved.", amount, purposeTitles[payment.Purpose]),
			Data:    map[string]interface{}{"paymentId": payment.ID, "purpose": payment.Purpose},
		})
	case mercadopago.StatusRejected, mercadopago.StatusCancelled:
		s.notifier.NotifyBestEffort(ctx, Notice{
			UserID:  payment.UserID,
			Type:    model.NotificationPaymentRejected,
			Title:   "Payment rejected",
			Message: fmt.Sprintf("Your payment of %s could not be processed.", amount),
			Data:    map[string]interface{}{"paymentId": payment.ID, "purpose": payment.Purpose, "status": status},
		})
	}
}

// revokes reports whether moving from previous to status takes back what
// the payment bought
func revokes(previous, status string) bool {
	return previous == mercadopago.StatusApproved &&
		(status == mercadopago.StatusRefunded || status == mercadopago.StatusChargedBack)
}

// grantEntitlement applies what an approved payment bought. Plans end with
// the caps of the user's type re-applied.
func (s *Payments) grantEntitlement(ctx context.Context, tx *gorm.DB, payment model.Payment, now time.Time) error {
	until := now.Add(entitlementDurations[payment.Purpose])

	if payment.Purpose == model.PurposeHighlight {
		if payment.PropertyID == nil {
			return apperr.Internal("highlight payment without property", errors.New("missing property id"))
		}
		if err := tx.Model(&model.Property{}).Where("id = ?", *payment.PropertyID).Updates(map[string]interface{}{
			"featured":       true,
			"featured_until": until,
		}).Error; err != nil {
			return apperr.Internal("failed to feature property", err)
		}
		return nil
	}

	sub := model.Subscription{
		UserID:    payment.UserID,
		Plan:      payment.Purpose,
		Status:    model.SubscriptionActive,
		PaymentID: &payment.ID,
		StartsAt:  now,
		ExpiresAt: until,
	}
	if err := tx.Create(&sub).Error; err != nil {
		return apperr.Internal("failed to create subscription", err)
	}
	if payment.Purpose == model.PlanCommunityProfile {
		if err := tx.Model(&model.CommunityProfile{}).Where("user_id = ?", payment.UserID).Updates(map[string]interface{}{
			"is_paid":    true,
			"paid_until": until,
		}).Error; err != nil {
			return apperr.Internal("failed to mark profile paid", err)
		}
	}
	_, err := s.limits.reconcile(ctx, tx, payment.UserID)
	return err
}

// revokeEntitlement takes back what a refunded or charged back payment
// bought. Listings beyond the remaining caps are expired.
func (s *Payments) revokeEntitlement(ctx context.Context, tx *gorm.DB, payment model.Payment) error {
	if !payment.EntitlementGranted {
		return nil
	}
	if payment.Purpose == model.PurposeHighlight {
		if payment.PropertyID == nil {
			return nil
		}
		if err := tx.Model(&model.Property{}).Where("id = ?", *payment.PropertyID).Updates(map[string]interface{}{
			"featured":       false,
			"featured_until": nil,
		}).Error; err != nil {
			return apperr.Internal("failed to unfeature property", err)
		}
		return nil
	}

	if err := tx.Model(&model.Subscription{}).
		Where("payment_id = ? AND status = ?", payment.ID, model.SubscriptionActive).
		Update("status", model.SubscriptionCancelled).Error; err != nil {
		return apperr.Internal("failed to cancel subscription", err)
	}
	if payment.Purpose == model.PlanCommunityProfile {
		if err := tx.Model(&model.CommunityProfile{}).Where("user_id = ?", payment.UserID).Updates(map[string]interface{}{
			"is_paid":    false,
			"paid_until": nil,
		}).Error; err != nil {
			return apperr.Internal("failed to unmark profile paid", err)
		}
	}
	_, err := s.limits.reconcile(ctx, tx, payment.UserID)
	return err
}

// List returns the caller's payments, newest first
func (s *Payments) List(ctx context.Context, userID uint) ([]model.Payment, error) {
	var rows []model.Payment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, apperr.Internal("failed to list payments", err)
	}
	return rows, nil
}

// Get returns one of the caller's payments
func (s *Payments) Get(ctx context.Context, userID, id uint) (*model.Payment, error) {
	var p model.Payment
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, lookupErr(err, "payment")
	}
	if p.UserID != userID {
		return nil, apperr.Forbidden("you do not have access to this payment")
	}
	return &p, nil
}

// Status describes a payment the way the checkout pages show it
func (s *Payments) Status(ctx context.Context, userID, id uint) (*PaymentStatus, error) {
	p, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return &PaymentStatus{
		ID:           p.ID,
		Status:       p.Status,
		StatusDetail: p.StatusDetail,
		Description:  mercadopago.StatusDescription(p.Status, p.StatusDetail),
		Amount:       mercadopago.FormatAmount(p.Amount, p.Currency),
		Purpose:      p.Purpose,
	}, nil
}

// Methods lists the payment methods enabled for the account
func (s *Payments) Methods(ctx context.Context) ([]mercadopago.PaymentMethod, error) {
	methods, err := s.gateway.PaymentMethods(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to load payment methods", err)
	}
	return methods, nil
}

// Refund fully refunds an approved payment and revokes what it bought
func (s *Payments) Refund(ctx context.Context, id uint) (*model.Payment, error) {
	var p model.Payment
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, lookupErr(err, "payment")
	}
	if p.Status != model.PaymentApproved || p.ProviderPaymentID == "" {
		return nil, apperr.BadRequest("only approved payments can be refunded")
	}
	refund, err := s.gateway.CreateRefund(ctx, p.ProviderPaymentID, nil)
	if err != nil {
		return nil, apperr.Internal("failed to refund payment", err)
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&p).Updates(map[string]interface{}{
			"status":        mercadopago.StatusRefunded,
			"status_detail": "refund_" + strconv.FormatInt(refund.ID, 10),
		}).Error; err != nil {
			return apperr.Internal("failed to update payment", err)
		}
		return s.revokeEntitlement(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Payment refunded", zap.Uint("payment_id", p.ID), zap.Int64("refund_id", refund.ID))
	return &p, nil
}
