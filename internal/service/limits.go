package service

import (
	"context"
	"fmt"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Unlimited marks a limit without a cap
const Unlimited = -1

// UserLimits are the publishing caps of a user type and plan
type UserLimits struct {
	UserType          string          `json:"userType"`
	MaxFreeProperties int             `json:"maxFreeProperties"`
	MaxPaidProperties int             `json:"maxPaidProperties"`
	MaxFreeProfiles   int             `json:"maxFreeProfiles"`
	MaxPaidProfiles   int             `json:"maxPaidProfiles"`
	CanHighlight      bool            `json:"canHighlight"`
	HighlightPrice    decimal.Decimal `json:"highlightPrice"`
}

// GetUserLimits returns the caps for userType. plan is "premium" or "basic"
// and only matters for inmobiliarias.
func GetUserLimits(userType, plan string) UserLimits {
	switch userType {
	case model.UserTypeInquilino:
		return UserLimits{userType, 0, 0, 1, Unlimited, true, decimal.NewFromInt(3000)}
	case model.UserTypeDuenoDirecto:
		return UserLimits{userType, 3, 10, 0, 1, true, decimal.NewFromInt(7000)}
	case model.UserTypeInmobiliaria:
		if plan == "premium" {
			return UserLimits{userType, 0, Unlimited, 0, Unlimited, true, decimal.NewFromInt(7000)}
		}
		return UserLimits{userType, 0, 10, 0, 5, true, decimal.NewFromInt(7000)}
	default:
		return UserLimits{model.UserTypeInquilino, 0, 0, 1, 1, false, decimal.Zero}
	}
}

var pricing = map[string]map[string]decimal.Decimal{
	model.UserTypeInquilino: {
		model.PlanCommunityProfile: decimal.NewFromInt(5000),
		model.PurposeHighlight:     decimal.NewFromInt(3000),
	},
	model.UserTypeDuenoDirecto: {
		model.PlanPropertyPackage:  decimal.NewFromInt(10000),
		model.PlanCommunityProfile: decimal.NewFromInt(5000),
		model.PurposeHighlight:     decimal.NewFromInt(7000),
	},
	model.UserTypeInmobiliaria: {
		model.PlanBasic:        decimal.NewFromInt(25000),
		model.PlanPremium:      decimal.NewFromInt(50000),
		model.PurposeHighlight: decimal.NewFromInt(7000),
	},
}

// Price returns the ARS price of purpose for userType
func Price(userType, purpose string) (decimal.Decimal, bool) {
	price, ok := pricing[userType][purpose]
	return price, ok
}

// Entitlement durations granted by an approved payment
var entitlementDurations = map[string]time.Duration{
	model.PurposeHighlight:     20 * 24 * time.Hour,
	model.PlanCommunityProfile: 30 * 24 * time.Hour,
	model.PlanPropertyPackage:  90 * 24 * time.Hour,
	model.PlanBasic:            30 * 24 * time.Hour,
	model.PlanPremium:          30 * 24 * time.Hour,
}

// Plans that unlock paid publishing
var (
	propertyPlans  = []string{model.PlanPropertyPackage, model.PlanBasic, model.PlanPremium}
	communityPlans = []string{model.PlanCommunityProfile, model.PlanBasic, model.PlanPremium}
)

// LimitCheck is the answer to "may this user create one more"
type LimitCheck struct {
	Allowed         bool            `json:"allowed"`
	Reason          string          `json:"reason,omitempty"`
	RequiresPayment bool            `json:"requiresPayment"`
	CurrentCount    int             `json:"currentCount"`
	MaxAllowed      int             `json:"maxAllowed"`
	Price           decimal.Decimal `json:"price"`
	Purpose         string          `json:"purpose,omitempty"`
}

// HighlightCheck is the answer to "may this user feature a listing"
type HighlightCheck struct {
	Allowed bool            `json:"allowed"`
	Reason  string          `json:"reason,omitempty"`
	Price   decimal.Decimal `json:"price"`
}

// UsageSummary aggregates limits and current usage
type UsageSummary struct {
	UserType         string     `json:"userType"`
	SubscriptionType string     `json:"subscriptionType"`
	Limits           UserLimits `json:"limits"`
	Usage            Usage      `json:"usage"`
}

type Usage struct {
	Properties   UsageCounter   `json:"properties"`
	Profiles     UsageCounter   `json:"profiles"`
	Highlighting HighlightUsage `json:"highlighting"`
}

type UsageCounter struct {
	Current  int  `json:"current"`
	MaxFree  int  `json:"maxFree"`
	MaxPaid  int  `json:"maxPaid"`
	CanFree  bool `json:"canCreateFree"`
	CanPaid  bool `json:"canCreatePaid"`
	Entitled bool `json:"entitled"`
}

type HighlightUsage struct {
	Available bool            `json:"available"`
	Price     decimal.Decimal `json:"price"`
}

// Limits evaluates publishing caps against the database
type Limits struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLimits(db *gorm.DB) *Limits {
	return &Limits{db: db, now: time.Now}
}

type limitState struct {
	user   model.User
	subs   []model.Subscription
	plan   string
	limits UserLimits
}

func (l *Limits) load(ctx context.Context, db *gorm.DB, userID uint) (*limitState, error) {
	var st limitState
	if err := db.WithContext(ctx).First(&st.user, userID).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	now := l.now()
	if err := db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND starts_at <= ? AND expires_at > ?", userID, model.SubscriptionActive, now, now).
		Order("created_at DESC").
		Find(&st.subs).Error; err != nil {
		return nil, apperr.Internal("failed to load subscriptions", err)
	}
	st.plan = planName(st.subs)
	st.limits = GetUserLimits(st.user.UserType, st.plan)
	return &st, nil
}

func planName(subs []model.Subscription) string {
	name := ""
	for _, s := range subs {
		switch s.Plan {
		case model.PlanPremium:
			return "premium"
		case model.PlanBasic:
			name = "basic"
		}
	}
	return name
}

func (st *limitState) entitled(plans []string) bool {
	for _, s := range st.subs {
		for _, p := range plans {
			if s.Plan == p {
				return true
			}
		}
	}
	return false
}

func countProperties(ctx context.Context, db *gorm.DB, userID uint) (int, error) {
	var n int64
	err := db.WithContext(ctx).Model(&model.Property{}).
		Where("user_id = ? AND status <> ?", userID, model.PropertyExpired).
		Count(&n).Error
	return int(n), err
}

func countProfiles(ctx context.Context, db *gorm.DB, userID uint) (int, error) {
	var n int64
	err := db.WithContext(ctx).Model(&model.CommunityProfile{}).Where("user_id = ?", userID).Count(&n).Error
	return int(n), err
}

func evaluate(current, maxFree, maxPaid int, what string) LimitCheck {
	if current < maxFree {
		return LimitCheck{Allowed: true, CurrentCount: current, MaxAllowed: maxFree}
	}
	if maxPaid == Unlimited || current < maxPaid {
		return LimitCheck{Allowed: true, RequiresPayment: true, CurrentCount: current, MaxAllowed: maxPaid}
	}
	return LimitCheck{
		Allowed:      false,
		Reason:       fmt.Sprintf("you reached the maximum of %d %s", maxPaid, what),
		CurrentCount: current,
		MaxAllowed:   maxPaid,
	}
}

// paidPurpose is what a user of userType buys to unlock paid slots
func paidPurpose(userType string, community bool) string {
	switch {
	case userType == model.UserTypeInmobiliaria:
		return model.PlanBasic
	case community:
		return model.PlanCommunityProfile
	default:
		return model.PlanPropertyPackage
	}
}

// canPublishProperty checks the property cap. A paid slot is usable
// without payment when a property plan is already active.
func (l *Limits) canPublishProperty(ctx context.Context, db *gorm.DB, userID uint) (LimitCheck, error) {
	st, err := l.load(ctx, db, userID)
	if err != nil {
		return LimitCheck{}, err
	}
	current, err := countProperties(ctx, db, userID)
	if err != nil {
		return LimitCheck{}, apperr.Internal("failed to count properties", err)
	}
	check := evaluate(current, st.limits.MaxFreeProperties, st.limits.MaxPaidProperties, "properties")
	if check.RequiresPayment {
		check.Purpose = paidPurpose(st.user.UserType, false)
		check.Price, _ = Price(st.user.UserType, check.Purpose)
		if st.entitled(propertyPlans) {
			check.RequiresPayment = false
		}
	}
	return check, nil
}

// CanCreateCommunityProfile checks the community profile cap
func (l *Limits) CanCreateCommunityProfile(ctx context.Context, userID uint) (LimitCheck, error) {
	st, err := l.load(ctx, l.db, userID)
	if err != nil {
		return LimitCheck{}, err
	}
	current, err := countProfiles(ctx, l.db, userID)
	if err != nil {
		return LimitCheck{}, apperr.Internal("failed to count profiles", err)
	}
	check := evaluate(current, st.limits.MaxFreeProfiles, st.limits.MaxPaidProfiles, "profiles")
	if check.RequiresPayment {
		check.Purpose = paidPurpose(st.user.UserType, true)
		check.Price, _ = Price(st.user.UserType, check.Purpose)
		if st.entitled(communityPlans) {
			check.RequiresPayment = false
		}
	}
	return check, nil
}

// CanHighlight reports whether the user may feature listings and at what price
func (l *Limits) CanHighlight(ctx context.Context, userID uint) (HighlightCheck, error) {
	st, err := l.load(ctx, l.db, userID)
	if err != nil {
		return HighlightCheck{}, err
	}
	if !st.limits.CanHighlight {
		return HighlightCheck{Reason: "your account type cannot feature listings", Price: decimal.Zero}, nil
	}
	return HighlightCheck{Allowed: true, Price: st.limits.HighlightPrice}, nil
}

// UsageSummary reports limits and usage for userID
func (l *Limits) UsageSummary(ctx context.Context, userID uint) (*UsageSummary, error) {
	return l.usageSummary(ctx, l.db, userID)
}

func (l *Limits) usageSummary(ctx context.Context, db *gorm.DB, userID uint) (*UsageSummary, error) {
	st, err := l.load(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	properties, err := countProperties(ctx, db, userID)
	if err != nil {
		return nil, apperr.Internal("failed to count properties", err)
	}
	profiles, err := countProfiles(ctx, db, userID)
	if err != nil {
		return nil, apperr.Internal("failed to count profiles", err)
	}

	subscription := "free"
	if len(st.subs) > 0 {
		subscription = st.subs[0].Plan
	}
	lim := st.limits
	return &UsageSummary{
		UserType:         st.user.UserType,
		SubscriptionType: subscription,
		Limits:           lim,
		Usage: Usage{
			Properties: UsageCounter{
				Current:  properties,
				MaxFree:  lim.MaxFreeProperties,
				MaxPaid:  lim.MaxPaidProperties,
				CanFree:  properties < lim.MaxFreeProperties,
				CanPaid:  lim.MaxPaidProperties == Unlimited || properties < lim.MaxPaidProperties,
				Entitled: st.entitled(propertyPlans),
			},
			Profiles: UsageCounter{
				Current:  profiles,
				MaxFree:  lim.MaxFreeProfiles,
				MaxPaid:  lim.MaxPaidProfiles,
				CanFree:  profiles < lim.MaxFreeProfiles,
				CanPaid:  lim.MaxPaidProfiles == Unlimited || profiles < lim.MaxPaidProfiles,
				Entitled: st.entitled(communityPlans),
			},
			Highlighting: HighlightUsage{Available: lim.CanHighlight, Price: lim.HighlightPrice},
		},
	}, nil
}

// ApplyPlan switches the user type and brings existing listings within the
// new caps: the oldest AVAILABLE properties beyond the cap expire and an
// over limit community profile is suspended.
func (l *Limits) ApplyPlan(ctx context.Context, userID uint, userType string) (*UsageSummary, error) {
	if !model.ValidUserType(userType) {
		return nil, apperr.BadRequest("invalid user type")
	}

	var summary *UsageSummary
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		summary, err = l.applyPlan(ctx, tx, userID, userType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// reconcile re-applies the caps of the user's current type, after a
// subscription was granted or revoked inside tx
func (l *Limits) reconcile(ctx context.Context, tx *gorm.DB, userID uint) (*UsageSummary, error) {
	var user model.User
	if err := tx.WithContext(ctx).Select("id", "user_type").First(&user, userID).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return l.applyPlan(ctx, tx, userID, user.UserType)
}

func (l *Limits) applyPlan(ctx context.Context, tx *gorm.DB, userID uint, userType string) (*UsageSummary, error) {
	res := tx.WithContext(ctx).Model(&model.User{}).Where("id = ?", userID).Update("user_type", userType)
	if res.Error != nil {
		return nil, apperr.Internal("failed to update user type", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("user not found")
	}

	s, err := l.usageSummary(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	props := s.Usage.Properties
	if props.MaxPaid != Unlimited && props.Current > props.MaxPaid {
		var ids []uint
		if err := tx.WithContext(ctx).Model(&model.Property{}).
			Where("user_id = ? AND status = ?", userID, model.PropertyAvailable).
			Order("created_at ASC, id ASC").
			Limit(props.Current-props.MaxPaid).
			Pluck("id", &ids).Error; err != nil {
			return nil, apperr.Internal("failed to select excess properties", err)
		}
		if len(ids) > 0 {
			if err := tx.WithContext(ctx).Model(&model.Property{}).Where("id IN ?", ids).
				Update("status", model.PropertyExpired).Error; err != nil {
				return nil, apperr.Internal("failed to expire properties", err)
			}
		}
	}

	profiles := s.Usage.Profiles
	if profiles.MaxPaid != Unlimited && profiles.Current > profiles.MaxPaid {
		if err := tx.WithContext(ctx).Model(&model.CommunityProfile{}).Where("user_id = ?", userID).
			Update("is_suspended", true).Error; err != nil {
			return nil, apperr.Internal("failed to suspend profile", err)
		}
	}

	return l.usageSummary(ctx, tx, userID)
}
