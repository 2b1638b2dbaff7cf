package service

import (
	"net/http"
	"testing"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserLimits(t *testing.T) {
	tests := []struct {
		userType, plan     string
		maxFree, maxPaid   int
		freeProf, paidProf int
		highlight          bool
		highlightPrice     int64
	}{
		{model.UserTypeInquilino, "", 0, 0, 1, Unlimited, true, 3000},
		{model.UserTypeDuenoDirecto, "", 3, 10, 0, 1, true, 7000},
		{model.UserTypeInmobiliaria, "premium", 0, Unlimited, 0, Unlimited, true, 7000},
		{model.UserTypeInmobiliaria, "basic", 0, 10, 0, 5, true, 7000},
		{"unknown", "", 0, 0, 1, 1, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.userType+"/"+tt.plan, func(t *testing.T) {
			l := GetUserLimits(tt.userType, tt.plan)
			assert.Equal(t, tt.maxFree, l.MaxFreeProperties)
			assert.Equal(t, tt.maxPaid, l.MaxPaidProperties)
			assert.Equal(t, tt.freeProf, l.MaxFreeProfiles)
			assert.Equal(t, tt.paidProf, l.MaxPaidProfiles)
			assert.Equal(t, tt.highlight, l.CanHighlight)
			assert.True(t, decimal.NewFromInt(tt.highlightPrice).Equal(l.HighlightPrice))
		})
	}
}

func TestPrice(t *testing.T) {
	price, ok := Price(model.UserTypeInmobiliaria, model.PlanPremium)
	require.True(t, ok)
	assert.Equal(t, "50000", price.String())

	_, ok = Price(model.UserTypeInquilino, model.PlanPropertyPackage)
	assert.False(t, ok)
}

func TestCanPublishProperty(t *testing.T) {
	db := testutil.NewDB(t)
	limits := NewLimits(db)
	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)

	check, err := limits.canPublishProperty(ctx, db, owner.ID)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.False(t, check.RequiresPayment)

	for i := 0; i < 3; i++ {
		testutil.CreateProperty(t, db, owner.ID)
	}
	check, err = limits.canPublishProperty(ctx, db, owner.ID)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.True(t, check.RequiresPayment)
	assert.Equal(t, model.PlanPropertyPackage, check.Purpose)
	assert.Equal(t, "10000", check.Price.String())

	testutil.CreateSubscription(t, db, owner.ID, model.PlanPropertyPackage)
	check, err = limits.canPublishProperty(ctx, db, owner.ID)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.False(t, check.RequiresPayment)

	for i := 0; i < 7; i++ {
		testutil.CreateProperty(t, db, owner.ID)
	}
	check, err = limits.canPublishProperty(ctx, db, owner.ID)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, 10, check.CurrentCount)
	assert.NotEmpty(t, check.Reason)
}

func TestCanPublishPropertyIgnoresExpired(t *testing.T) {
	db := testutil.NewDB(t)
	limits := NewLimits(db)
	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)
	for i := 0; i < 3; i++ {
		p := testutil.CreateProperty(t, db, owner.ID)
		require.NoError(t, db.Model(p).Update("status", model.PropertyExpired).Error)
	}

	check, err := limits.canPublishProperty(ctx, db, owner.ID)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.False(t, check.RequiresPayment)
	assert.Equal(t, 0, check.CurrentCount)
}

func TestCanPublishPropertyInquilinoDenied(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, model.UserTypeInquilino)

	check, err := NewLimits(db).canPublishProperty(ctx, db, user.ID)
	require.NoError(t, err)
	assert.False(t, check.Allowed)
}

func TestCanPublishPropertyUnknownUser(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := NewLimits(db).canPublishProperty(ctx, db, 999)
	requireStatus(t, err, http.StatusNotFound)
}

func TestCanCreateCommunityProfile(t *testing.T) {
	db := testutil.NewDB(t)
	limits := NewLimits(db)

	tenant := testutil.CreateUser(t, db, model.UserTypeInquilino)
	check, err := limits.CanCreateCommunityProfile(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.False(t, check.RequiresPayment)

	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)
	check, err = limits.CanCreateCommunityProfile(ctx, owner.ID)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.True(t, check.RequiresPayment)
	assert.Equal(t, model.PlanCommunityProfile, check.Purpose)
	assert.Equal(t, "5000", check.Price.String())
}

func TestCanHighlight(t *testing.T) {
	db := testutil.NewDB(t)
	limits := NewLimits(db)
	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)

	check, err := limits.CanHighlight(ctx, owner.ID)
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, "7000", check.Price.String())
}

func TestUsageSummary(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)
	testutil.CreateProperty(t, db, owner.ID)

	s, err := NewLimits(db).UsageSummary(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeDuenoDirecto, s.UserType)
	assert.Equal(t, "free", s.SubscriptionType)
	assert.Equal(t, 1, s.Usage.Properties.Current)
	assert.True(t, s.Usage.Properties.CanFree)
	assert.True(t, s.Usage.Highlighting.Available)
}

func TestApplyPlanExpiresExcessProperties(t *testing.T) {
	db := testutil.NewDB(t)
	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)
	first := testutil.CreateProperty(t, db, owner.ID)
	second := testutil.CreateProperty(t, db, owner.ID)

	s, err := NewLimits(db).ApplyPlan(ctx, owner.ID, model.UserTypeInquilino)
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeInquilino, s.UserType)
	assert.Equal(t, 0, s.Usage.Properties.Current)

	for _, id := range []uint{first.ID, second.ID} {
		var p model.Property
		require.NoError(t, db.First(&p, id).Error)
		assert.Equal(t, model.PropertyExpired, p.Status)
	}
}

func TestApplyPlanKeepsProfileWithinLimit(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, model.UserTypeInquilino)
	profile := testutil.CreateProfile(t, db, user.ID, model.RoleBusco)

	_, err := NewLimits(db).ApplyPlan(ctx, user.ID, model.UserTypeInmobiliaria)
	require.NoError(t, err)

	var got model.CommunityProfile
	require.NoError(t, db.First(&got, profile.ID).Error)
	assert.False(t, got.IsSuspended, "basic inmobiliaria keeps up to 5 profiles")

	_, err = NewLimits(db).ApplyPlan(ctx, user.ID, "astronaut")
	requireStatus(t, err, http.StatusBadRequest)
}
