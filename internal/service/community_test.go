package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/testutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func newCommunity(t *testing.T) (*Community, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	return NewCommunity(db, newStore(t), newURLs(), filevalidator.New(), NewLimits(db), 15*time.Minute), db
}

func profileInput() CommunityProfileInput {
	return CommunityProfileInput{
		Role:      model.RoleBusco,
		City:      "Posadas",
		BudgetMin: 60000,
		BudgetMax: 100000,
		Tags:      []string{" Mascotas ", "no fumador", "mascotas"},
	}
}

func TestCreateCommunityProfile(t *testing.T) {
	community, db := newCommunity(t)
	tenant := testutil.CreateUser(t, db, model.UserTypeInquilino)

	v, err := community.CreateProfile(ctx, tenant.ID, profileInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"mascotas", "no fumador"}, []string(v.Tags))
	assert.False(t, v.IsPaid)
	assert.Empty(t, v.PhotoURLs)

	_, err = community.CreateProfile(ctx, tenant.ID, profileInput())
	requireStatus(t, err, http.StatusConflict)

	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)
	_, err = community.CreateProfile(ctx, owner.ID, profileInput())
	requireStatus(t, err, http.StatusPaymentRequired)

	testutil.CreateSubscription(t, db, owner.ID, model.PlanCommunityProfile)
	v, err = community.CreateProfile(ctx, owner.ID, profileInput())
	require.NoError(t, err)
	assert.True(t, v.IsPaid)
}

func TestCommunityProfileValidation(t *testing.T) {
	community, db := newCommunity(t)
	tenant := testutil.CreateUser(t, db, model.UserTypeInquilino)

	bad := []func(*CommunityProfileInput){
		func(in *CommunityProfileInput) { in.Role = "ALQUILO" },
		func(in *CommunityProfileInput) { in.BudgetMin = 200000 },
		func(in *CommunityProfileInput) { age := 17; in.Age = &age },
		func(in *CommunityProfileInput) { in.Tags = make([]string, 11) },
	}
	for _, mutate := range bad {
		in := profileInput()
		mutate(&in)
		_, err := community.CreateProfile(ctx, tenant.ID, in)
		requireStatus(t, err, http.StatusBadRequest)
	}
}

func TestListCommunityProfiles(t *testing.T) {
	community, db := newCommunity(t)
	me := testutil.CreateUser(t, db, model.UserTypeInquilino)
	testutil.CreateProfile(t, db, me.ID, model.RoleBusco)

	offerer := testutil.CreateUser(t, db, model.UserTypeInquilino)
	offer := testutil.CreateProfile(t, db, offerer.ID, model.RoleOfrezco)
	require.NoError(t, db.Model(offer).Update("tags", datatypes.JSONSlice[string]{"mascotas"}).Error)

	seeker := testutil.CreateUser(t, db, model.UserTypeInquilino)
	seek := testutil.CreateProfile(t, db, seeker.ID, model.RoleBusco)
	require.NoError(t, db.Model(seek).Updates(map[string]interface{}{"budget_min": 200000, "budget_max": 300000}).Error)

	hidden := testutil.CreateUser(t, db, model.UserTypeInquilino)
	suspended := testutil.CreateProfile(t, db, hidden.ID, model.RoleOfrezco)
	require.NoError(t, db.Model(suspended).Update("is_suspended", true).Error)

	page := Page{Page: 1, Limit: 20}
	rows, pg, err := community.ListProfiles(ctx, me.ID, CommunityFilter{}, page)
	require.NoError(t, err)
	assert.EqualValues(t, 2, pg.Total)
	for _, r := range rows {
		assert.NotEqual(t, me.ID, r.UserID)
		require.NotNil(t, r.User)
	}

	rows, _, err = community.ListProfiles(ctx, me.ID, CommunityFilter{Tags: []string{"Mascotas"}}, page)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, offer.ID, rows[0].ID)

	max := 150000
	rows, _, err = community.ListProfiles(ctx, me.ID, CommunityFilter{BudgetMax: &max}, page)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, offer.ID, rows[0].ID)

	_, _, err = community.ListProfiles(ctx, me.ID, CommunityFilter{Role: "OTHER"}, page)
	requireStatus(t, err, http.StatusBadRequest)

	_, err = community.GetProfile(ctx, me.ID, suspended.ID)
	requireStatus(t, err, http.StatusNotFound)
	_, err = community.GetProfile(ctx, hidden.ID, suspended.ID)
	require.NoError(t, err)
}

func TestCommunityPhotosAndDelete(t *testing.T) {
	community, db := newCommunity(t)
	tenant := testutil.CreateUser(t, db, model.UserTypeInquilino)
	other := testutil.CreateUser(t, db, model.UserTypeInquilino)
	testutil.CreateProfile(t, db, tenant.ID, model.RoleBusco)
	require.NoError(t, db.Create(&model.CommunityLike{FromUserID: other.ID, ToUserID: tenant.ID}).Error)

	photos, err := community.UploadPhotos(ctx, tenant.ID, []UploadInput{
		{FileName: "cuarto.png", ContentType: filevalidator.TypePNG, Data: pngBytes(t, 40, 40)},
	})
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Contains(t, photos[0].URL, "/storage/v1/object/sign/"+storage.BucketCommunityImages+"/")
	assert.True(t, photos[0].ExpiresAt.After(time.Now()))

	mine, err := community.MyProfile(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, mine.PhotoURLs, 1)

	tooMany := make([]UploadInput, model.MaxCommunityPhotos)
	for i := range tooMany {
		tooMany[i] = UploadInput{FileName: "x.png", ContentType: filevalidator.TypePNG, Data: pngBytes(t, 8, 8)}
	}
	_, err = community.UploadPhotos(ctx, tenant.ID, tooMany)
	requireStatus(t, err, http.StatusBadRequest)

	require.NoError(t, community.DeleteProfile(ctx, tenant.ID))
	_, err = community.MyProfile(ctx, tenant.ID)
	requireStatus(t, err, http.StatusNotFound)
	var likes int64
	require.NoError(t, db.Model(&model.CommunityLike{}).Count(&likes).Error)
	assert.Zero(t, likes)
}
