package service

import (
	"net/http"
	"testing"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/testutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/events"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type propertyFixture struct {
	db         *gorm.DB
	store      *storage.BlobStore
	properties *Properties
	events     *events.Recorder
	owner      *model.User
}

func newPropertyFixture(t *testing.T) *propertyFixture {
	t.Helper()
	db := testutil.NewDB(t)
	store := newStore(t)
	notifier, rec := newNotifier(db)
	return &propertyFixture{
		db:         db,
		store:      store,
		properties: NewProperties(db, store, newURLs(), filevalidator.New(), NewLimits(db), notifier, rec, 2),
		events:     rec,
		owner:      testutil.CreateUser(t, db, model.UserTypeDuenoDirecto),
	}
}

func propertyInput() PropertyInput {
	return PropertyInput{
		Title:        "Casa con patio",
		Price:        decimal.NewFromInt(250000),
		PropertyType: "casa",
		Operation:    "alquiler",
		City:         " Oberá ",
	}
}

func TestCreatePropertyDefaults(t *testing.T) {
	f := newPropertyFixture(t)

	v, err := f.properties.Create(ctx, f.owner.ID, propertyInput())
	require.NoError(t, err)
	assert.Equal(t, "Oberá", v.City)
	assert.Equal(t, DefaultProvince, v.Province)
	assert.Equal(t, DefaultCurrency, v.Currency)
	assert.Equal(t, model.PropertyAvailable, v.Status)
	assert.Empty(t, v.ImageURLs)

	in := propertyInput()
	in.Price = decimal.Zero
	_, err = f.properties.Create(ctx, f.owner.ID, in)
	requireStatus(t, err, http.StatusBadRequest)
}

func TestCreatePropertyEnforcesLimits(t *testing.T) {
	f := newPropertyFixture(t)
	for i := 0; i < 3; i++ {
		_, err := f.properties.Create(ctx, f.owner.ID, propertyInput())
		require.NoError(t, err)
	}

	_, err := f.properties.Create(ctx, f.owner.ID, propertyInput())
	requireStatus(t, err, http.StatusPaymentRequired)

	testutil.CreateSubscription(t, f.db, f.owner.ID, model.PlanPropertyPackage)
	_, err = f.properties.Create(ctx, f.owner.ID, propertyInput())
	require.NoError(t, err)

	tenant := testutil.CreateUser(t, f.db, model.UserTypeInquilino)
	_, err = f.properties.Create(ctx, tenant.ID, propertyInput())
	requireStatus(t, err, http.StatusForbidden)
}

func TestListPropertiesFiltersAndOrder(t *testing.T) {
	f := newPropertyFixture(t)
	cheap := testutil.CreateProperty(t, f.db, f.owner.ID)
	featured := testutil.CreateProperty(t, f.db, f.owner.ID)
	require.NoError(t, f.db.Model(featured).Updates(map[string]interface{}{"featured": true, "price": 400000}).Error)
	rented := testutil.CreateProperty(t, f.db, f.owner.ID)
	require.NoError(t, f.db.Model(rented).Update("status", model.PropertyRented).Error)
	suspended := testutil.CreateProperty(t, f.db, f.owner.ID)
	require.NoError(t, f.db.Model(suspended).Update("status", model.PropertySuspended).Error)

	rows, pg, err := f.properties.List(ctx, PropertyFilter{}, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, featured.ID, rows[0].ID)
	assert.Equal(t, cheap.ID, rows[1].ID)
	assert.EqualValues(t, 2, pg.Total)

	max := decimal.NewFromInt(200000)
	rows, _, err = f.properties.List(ctx, PropertyFilter{MaxPrice: &max, City: "posadas"}, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, cheap.ID, rows[0].ID)

	rows, _, err = f.properties.List(ctx, PropertyFilter{Status: model.PropertyRented}, Page{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, rented.ID, rows[0].ID)

	_, _, err = f.properties.List(ctx, PropertyFilter{Status: model.PropertySuspended}, Page{Page: 1, Limit: 10})
	requireStatus(t, err, http.StatusBadRequest)
}

func TestGetPropertyCountsViews(t *testing.T) {
	f := newPropertyFixture(t)
	p := testutil.CreateProperty(t, f.db, f.owner.ID)
	visitor := testutil.CreateUser(t, f.db, model.UserTypeInquilino)

	v, err := f.properties.Get(ctx, visitor.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Views)

	v, err = f.properties.Get(ctx, f.owner.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Views)

	require.NoError(t, f.db.Model(p).Update("status", model.PropertySuspended).Error)
	_, err = f.properties.Get(ctx, visitor.ID, p.ID)
	requireStatus(t, err, http.StatusNotFound)
	_, err = f.properties.Get(ctx, f.owner.ID, p.ID)
	require.NoError(t, err)
}

func TestUpdateAndDeleteRequireOwner(t *testing.T) {
	f := newPropertyFixture(t)
	p := testutil.CreateProperty(t, f.db, f.owner.ID)
	other := testutil.CreateUser(t, f.db, model.UserTypeDuenoDirecto)

	_, err := f.properties.Update(ctx, other.ID, p.ID, propertyInput())
	requireStatus(t, err, http.StatusForbidden)
	requireStatus(t, f.properties.Delete(ctx, other.ID, p.ID), http.StatusForbidden)

	in := propertyInput()
	in.Status = model.PropertyReserved
	v, err := f.properties.Update(ctx, f.owner.ID, p.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "Casa con patio", v.Title)
	assert.Equal(t, model.PropertyReserved, v.Status)

	require.NoError(t, f.db.Model(&model.Property{}).Where("id = ?", p.ID).Update("status", model.PropertySuspended).Error)
	in.Status = model.PropertyAvailable
	_, err = f.properties.Update(ctx, f.owner.ID, p.ID, in)
	requireStatus(t, err, http.StatusForbidden)

	require.NoError(t, f.properties.Delete(ctx, f.owner.ID, p.ID))
	_, err = f.properties.Get(ctx, f.owner.ID, p.ID)
	requireStatus(t, err, http.StatusNotFound)
}

func TestAddImages(t *testing.T) {
	f := newPropertyFixture(t)
	p := testutil.CreateProperty(t, f.db, f.owner.ID)

	urls, err := f.properties.AddImages(ctx, f.owner.ID, p.ID, []UploadInput{
		{FileName: "frente.png", ContentType: filevalidator.TypePNG, Data: pngBytes(t, 64, 48)},
		{FileName: "patio.png", ContentType: filevalidator.TypePNG, Data: pngBytes(t, 64, 48)},
	})
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Contains(t, urls[0], "/storage/v1/object/public/property-images/")

	var stored model.Property
	require.NoError(t, f.db.First(&stored, p.ID).Error)
	require.Len(t, stored.Images, 2)
	exists, err := f.store.Exists(ctx, storage.BucketPropertyImages, stored.Images[0])
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = f.properties.AddImages(ctx, f.owner.ID, p.ID, []UploadInput{
		{FileName: "fake.png", ContentType: filevalidator.TypePNG, Data: []byte("not an image")},
	})
	requireStatus(t, err, http.StatusBadRequest)

	tooMany := make([]UploadInput, model.MaxPropertyImages-1)
	for i := range tooMany {
		tooMany[i] = UploadInput{FileName: "x.png", ContentType: filevalidator.TypePNG, Data: pngBytes(t, 8, 8)}
	}
	_, err = f.properties.AddImages(ctx, f.owner.ID, p.ID, tooMany)
	requireStatus(t, err, http.StatusBadRequest)
}

func TestBulkActions(t *testing.T) {
	f := newPropertyFixture(t)
	a := testutil.CreateProperty(t, f.db, f.owner.ID)
	b := testutil.CreateProperty(t, f.db, f.owner.ID)

	res, err := f.properties.Bulk(ctx, f.owner.ID, BulkInput{Action: BulkToggleFeatured, PropertyIDs: []uint{a.ID, b.ID, a.ID}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.ElementsMatch(t, []uint{a.ID, b.ID}, res.Processed)

	var featured int64
	require.NoError(t, f.db.Model(&model.Property{}).Where("featured = ?", true).Count(&featured).Error)
	assert.EqualValues(t, 2, featured)

	in := BulkInput{Action: BulkUpdateStatus, PropertyIDs: []uint{a.ID}}
	in.Data.Status = model.PropertySold
	res, err = f.properties.Bulk(ctx, f.owner.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)

	res, err = f.properties.Bulk(ctx, f.owner.ID, BulkInput{Action: BulkDelete, PropertyIDs: []uint{b.ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	var left int64
	require.NoError(t, f.db.Model(&model.Property{}).Count(&left).Error)
	assert.EqualValues(t, 1, left)
}

func TestBulkRejectsInvalidInput(t *testing.T) {
	f := newPropertyFixture(t)
	mine := testutil.CreateProperty(t, f.db, f.owner.ID)
	other := testutil.CreateUser(t, f.db, model.UserTypeDuenoDirecto)
	theirs := testutil.CreateProperty(t, f.db, other.ID)

	_, err := f.properties.Bulk(ctx, f.owner.ID, BulkInput{Action: BulkDelete})
	requireStatus(t, err, http.StatusBadRequest)

	in := BulkInput{Action: BulkUpdateStatus, PropertyIDs: []uint{mine.ID}}
	in.Data.Status = model.PropertySuspended
	_, err = f.properties.Bulk(ctx, f.owner.ID, in)
	requireStatus(t, err, http.StatusBadRequest)

	_, err = f.properties.Bulk(ctx, f.owner.ID, BulkInput{Action: BulkDelete, PropertyIDs: []uint{mine.ID, 9999}})
	requireStatus(t, err, http.StatusNotFound)

	_, err = f.properties.Bulk(ctx, f.owner.ID, BulkInput{Action: BulkDelete, PropertyIDs: []uint{mine.ID, theirs.ID}})
	requireStatus(t, err, http.StatusForbidden)

	var count int64
	require.NoError(t, f.db.Model(&model.Property{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestReportAutoSuspends(t *testing.T) {
	f := newPropertyFixture(t)
	admin := testutil.CreateAdmin(t, f.db)
	p := testutil.CreateProperty(t, f.db, f.owner.ID)
	first := testutil.CreateUser(t, f.db, model.UserTypeInquilino)
	second := testutil.CreateUser(t, f.db, model.UserTypeInquilino)
	in := ReportInput{Reason: "scam", Details: "Piden seña antes de mostrar la casa"}

	res, err := f.properties.Report(ctx, first.ID, p.ID, in)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.AutoSuspended)

	_, err = f.properties.Report(ctx, first.ID, p.ID, in)
	requireStatus(t, err, http.StatusBadRequest)

	res, err = f.properties.Report(ctx, second.ID, p.ID, in)
	require.NoError(t, err)
	assert.True(t, res.AutoSuspended)

	var stored model.Property
	require.NoError(t, f.db.First(&stored, p.ID).Error)
	assert.Equal(t, model.PropertySuspended, stored.Status)

	var ownerNotes, adminNotes int64
	require.NoError(t, f.db.Model(&model.Notification{}).
		Where("user_id = ? AND type = ?", f.owner.ID, model.NotificationPropertySuspended).Count(&ownerNotes).Error)
	require.NoError(t, f.db.Model(&model.Notification{}).
		Where("user_id = ? AND type = ?", admin.ID, model.NotificationAdminReport).Count(&adminNotes).Error)
	assert.EqualValues(t, 1, ownerNotes)
	assert.EqualValues(t, 2, adminNotes)
	assert.Len(t, f.events.OfType(events.TypePropertyReported), 2)
}

func TestReportSuspendedPropertyNotFound(t *testing.T) {
	f := newPropertyFixture(t)
	p := testutil.CreateProperty(t, f.db, f.owner.ID)
	require.NoError(t, f.db.Model(p).Update("status", model.PropertySuspended).Error)
	reporter := testutil.CreateUser(t, f.db, model.UserTypeInquilino)

	_, err := f.properties.Report(ctx, reporter.ID, p.ID, ReportInput{Reason: "scam", Details: "Piden seña antes de mostrar la casa"})
	requireStatus(t, err, http.StatusNotFound)

	var reports int64
	require.NoError(t, f.db.Model(&model.PropertyReport{}).Count(&reports).Error)
	assert.Zero(t, reports)
}

func TestReportValidation(t *testing.T) {
	f := newPropertyFixture(t)
	p := testutil.CreateProperty(t, f.db, f.owner.ID)
	reporter := testutil.CreateUser(t, f.db, model.UserTypeInquilino)

	_, err := f.properties.Report(ctx, reporter.ID, p.ID, ReportInput{Reason: "boring", Details: "long enough details"})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = f.properties.Report(ctx, reporter.ID, p.ID, ReportInput{Reason: "scam", Details: "short"})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = f.properties.Report(ctx, f.owner.ID, p.ID, ReportInput{Reason: "scam", Details: "long enough details"})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = f.properties.Report(ctx, reporter.ID, 9999, ReportInput{Reason: "scam", Details: "long enough details"})
	requireStatus(t, err, http.StatusNotFound)
}
