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

func TestReviewReportRestoresProperty(t *testing.T) {
	db := testutil.NewDB(t)
	admin := NewAdmin(db)
	reviewer := testutil.CreateAdmin(t, db)
	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)
	reporter := testutil.CreateUser(t, db, model.UserTypeInquilino)
	p := testutil.CreateProperty(t, db, owner.ID)
	require.NoError(t, db.Model(p).Update("status", model.PropertySuspended).Error)
	report := model.PropertyReport{PropertyID: p.ID, ReporterID: reporter.ID, Reason: "scam", Details: "no existe la casa", Status: model.ReportPending}
	require.NoError(t, db.Create(&report).Error)

	pending, pg, err := admin.ListReports(ctx, model.ReportPending, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.EqualValues(t, 1, pg.Total)
	require.NotNil(t, pending[0].Property)
	assert.Equal(t, p.ID, pending[0].Property.ID)

	_, _, err = admin.ListReports(ctx, "OPEN", Page{Page: 1, Limit: 10})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = admin.ReviewReport(ctx, reviewer.ID, report.ID, ReviewInput{Status: model.ReportPending})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = admin.ReviewReport(ctx, reviewer.ID, 9999, ReviewInput{Status: model.ReportResolved})
	requireStatus(t, err, http.StatusNotFound)

	reviewed, err := admin.ReviewReport(ctx, reviewer.ID, report.ID, ReviewInput{Status: model.ReportDismissed, RestoreProperty: true})
	require.NoError(t, err)
	assert.Equal(t, model.ReportDismissed, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, reviewer.ID, *reviewed.ReviewedBy)

	require.NoError(t, db.First(p, p.ID).Error)
	assert.Equal(t, model.PropertyAvailable, p.Status)
}

func TestModerateCommunityPosts(t *testing.T) {
	db := testutil.NewDB(t)
	admin := NewAdmin(db)
	a := testutil.CreateProfile(t, db, testutil.CreateUser(t, db, model.UserTypeInquilino).ID, model.RoleBusco)
	testutil.CreateProfile(t, db, testutil.CreateUser(t, db, model.UserTypeInquilino).ID, model.RoleOfrezco)

	_, err := admin.SetCommunityPostSuspended(ctx, a.ID, true)
	require.NoError(t, err)
	_, err = admin.SetCommunityPostSuspended(ctx, 9999, true)
	requireStatus(t, err, http.StatusNotFound)

	rows, _, err := admin.ListCommunityPosts(ctx, CommunityPostFilter{Status: "suspended"}, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)

	rows, _, err = admin.ListCommunityPosts(ctx, CommunityPostFilter{}, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	stats, err := admin.CommunityPostStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, CommunityPostStats{Total: 2, Active: 1, Suspended: 1, Offer: 1, Seek: 0}, *stats)
}

func TestListCommunityPostsFilters(t *testing.T) {
	db := testutil.NewDB(t)
	admin := NewAdmin(db)
	posadas := testutil.CreateProfile(t, db, testutil.CreateUser(t, db, model.UserTypeInquilino).ID, model.RoleBusco)
	require.NoError(t, db.Model(posadas).Update("bio", "Estudiante de medicina, tranquila").Error)
	obera := testutil.CreateProfile(t, db, testutil.CreateUser(t, db, model.UserTypeInquilino).ID, model.RoleOfrezco)
	require.NoError(t, db.Model(obera).Updates(map[string]interface{}{"city": "Oberá", "budget_max": 200000}).Error)
	page := Page{Page: 1, Limit: 10}

	rows, _, err := admin.ListCommunityPosts(ctx, CommunityPostFilter{Search: "MEDICINA"}, page)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, posadas.ID, rows[0].ID)

	rows, _, err = admin.ListCommunityPosts(ctx, CommunityPostFilter{Role: "ofrezco"}, page)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, obera.ID, rows[0].ID)

	rows, _, err = admin.ListCommunityPosts(ctx, CommunityPostFilter{City: "Posadas"}, page)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, posadas.ID, rows[0].ID)

	rows, _, err = admin.ListCommunityPosts(ctx, CommunityPostFilter{SortBy: "budget", SortOrder: "asc"}, page)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, posadas.ID, rows[0].ID)
	assert.Equal(t, obera.ID, rows[1].ID)

	for _, f := range []CommunityPostFilter{{SortBy: "likes"}, {SortOrder: "sideways"}, {Role: "MAYBE"}, {Status: "deleted"}} {
		_, _, err = admin.ListCommunityPosts(ctx, f, page)
		requireStatus(t, err, http.StatusBadRequest)
	}
}

func TestAdminUsersAndStats(t *testing.T) {
	db := testutil.NewDB(t)
	admin := NewAdmin(db)
	owner := testutil.CreateUser(t, db, model.UserTypeDuenoDirecto)
	testutil.CreateUser(t, db, model.UserTypeInquilino)
	testutil.CreateUser(t, db, model.UserTypeInquilino)
	testutil.CreateProperty(t, db, owner.ID)
	for i, status := range []string{model.PaymentApproved, model.PaymentApproved, model.PaymentPending} {
		require.NoError(t, db.Create(&model.Payment{
			UserID: owner.ID, Purpose: model.PlanPropertyPackage, Amount: decimal.RequireFromString("10000.50"),
			Currency: "ARS", Status: status, ExternalReference: "ref-" + string(rune('a'+i)),
		}).Error)
	}

	rows, pg, err := admin.ListUsers(ctx, model.UserTypeInquilino, Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.EqualValues(t, 2, pg.Total)
	assert.True(t, pg.HasNextPage)
	_, _, err = admin.ListUsers(ctx, "robot", Page{Page: 1, Limit: 10})
	requireStatus(t, err, http.StatusBadRequest)

	stats, err := admin.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.UsersByType[model.UserTypeInquilino])
	assert.EqualValues(t, 1, stats.PropertiesByStatus[model.PropertyAvailable])
	assert.EqualValues(t, 2, stats.ApprovedPayments)
	assert.Equal(t, "20001", stats.ApprovedAmountTotal.String())
}
