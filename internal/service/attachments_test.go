package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/testutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type attachmentFixture struct {
	db          *gorm.DB
	store       *storage.BlobStore
	attachments *Attachments
	uploader    *model.User
	peer        *model.User
	thread      *model.Conversation
}

func newAttachmentFixture(t *testing.T) *attachmentFixture {
	t.Helper()
	db := testutil.NewDB(t)
	store := newStore(t)
	f := &attachmentFixture{
		db:          db,
		store:       store,
		attachments: NewAttachments(db, store, newURLs(), filevalidator.New(), time.Hour),
		uploader:    testutil.CreateUser(t, db, model.UserTypeDuenoDirecto),
		peer:        testutil.CreateUser(t, db, model.UserTypeInquilino),
	}
	f.thread = testutil.CreateConversation(t, db, f.uploader.ID, f.peer.ID)
	return f
}

func pdfUpload() UploadInput {
	return UploadInput{
		FileName:    "contrato final.pdf",
		ContentType: filevalidator.TypePDF,
		Data:        []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF"),
	}
}

func TestAttachmentPlanFor(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, model.UserTypeInmobiliaria)

	plan, err := AttachmentPlanFor(ctx, db, user.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TierFree, plan.Tier)
	assert.False(t, plan.Allowed)

	testutil.CreateSubscription(t, db, user.ID, model.PlanBasic)
	plan, err = AttachmentPlanFor(ctx, db, user.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TierPro, plan.Tier)
	assert.NotContains(t, plan.AllowedTypes, filevalidator.TypeDocx)

	testutil.CreateSubscription(t, db, user.ID, model.PlanPremium)
	plan, err = AttachmentPlanFor(ctx, db, user.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TierBusiness, plan.Tier)
	assert.Equal(t, 10, plan.MaxFilesPerMessage)
	assert.Contains(t, plan.AllowedTypes, filevalidator.TypeDocx)
}

func TestUploadAttachment(t *testing.T) {
	f := newAttachmentFixture(t)
	testutil.CreateSubscription(t, f.db, f.uploader.ID, model.PlanPropertyPackage)

	view, err := f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, pdfUpload())
	require.NoError(t, err)
	assert.Equal(t, "contrato_final.pdf", view.FileName)
	assert.Equal(t, filevalidator.TypePDF, view.MimeType)
	assert.Contains(t, view.URL, "/storage/v1/object/sign/message-attachments/")
	assert.Contains(t, view.URL, "token=")

	var row model.MessageAttachment
	require.NoError(t, f.db.First(&row, view.ID).Error)
	assert.Nil(t, row.MessageID)
	assert.Equal(t, f.thread.ID, row.ConversationID)

	exists, err := f.store.Exists(ctx, storage.BucketMessageAttachments, row.StorageKey)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := f.attachments.Get(ctx, f.peer.ID, view.ID)
	require.NoError(t, err)
	assert.Contains(t, got.URL, "token=")
}

func TestUploadImageAttachmentRecordsDimensions(t *testing.T) {
	f := newAttachmentFixture(t)
	testutil.CreateSubscription(t, f.db, f.uploader.ID, model.PlanPropertyPackage)

	view, err := f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, UploadInput{
		FileName: "foto.png", ContentType: filevalidator.TypePNG, Data: pngBytes(t, 320, 240),
	})
	require.NoError(t, err)
	require.NotNil(t, view.Width)
	require.NotNil(t, view.Height)
	assert.Equal(t, 320, *view.Width)
	assert.Equal(t, 240, *view.Height)
}

func TestUploadAttachmentRules(t *testing.T) {
	f := newAttachmentFixture(t)
	stranger := testutil.CreateUser(t, f.db, model.UserTypeInquilino)

	_, err := f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, UploadInput{})
	requireStatus(t, err, http.StatusBadRequest)
	_, err = f.attachments.Upload(ctx, f.uploader.ID, 0, pdfUpload())
	requireStatus(t, err, http.StatusBadRequest)
	_, err = f.attachments.Upload(ctx, stranger.ID, f.thread.ID, pdfUpload())
	requireStatus(t, err, http.StatusNotFound)
	_, err = f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, pdfUpload())
	requireStatus(t, err, http.StatusForbidden)

	testutil.CreateSubscription(t, f.db, f.uploader.ID, model.PlanPropertyPackage)
	docx := UploadInput{FileName: "a.docx", ContentType: filevalidator.TypeDocx, Data: []byte("PK\x03\x04rest")}
	_, err = f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, docx)
	requireStatus(t, err, http.StatusBadRequest)

	spoofed := UploadInput{FileName: "x.pdf", ContentType: filevalidator.TypePDF, Data: []byte("MZ not a pdf")}
	_, err = f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, spoofed)
	requireStatus(t, err, http.StatusBadRequest)
}

func TestUploadAttachmentRateLimited(t *testing.T) {
	f := newAttachmentFixture(t)
	testutil.CreateSubscription(t, f.db, f.uploader.ID, model.PlanPropertyPackage)

	burst := attachmentPlans[TierPro].Burst
	for i := 0; i < burst; i++ {
		_, err := f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, pdfUpload())
		require.NoError(t, err)
	}
	_, err := f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, pdfUpload())
	requireStatus(t, err, http.StatusTooManyRequests)

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	info, ok := appErr.Details.(RateLimitInfo)
	require.True(t, ok)
	assert.Equal(t, burst, info.Limit)
	assert.Positive(t, info.RetryAfter)
	assert.Equal(t, "0", info.Headers()["X-RateLimit-Remaining"])
}

func TestUploadAttachmentDailyQuota(t *testing.T) {
	f := newAttachmentFixture(t)
	testutil.CreateSubscription(t, f.db, f.uploader.ID, model.PlanPropertyPackage)
	quota := attachmentPlans[TierPro].DailyQuota
	for i := 0; i < quota; i++ {
		require.NoError(t, f.db.Create(&model.MessageAttachment{
			ConversationID: f.thread.ID, UploaderID: f.uploader.ID, FileName: "f", MimeType: "application/pdf",
			SizeBytes: 1, StorageKey: "k", CreatedAt: time.Now().Add(-time.Hour),
		}).Error)
	}

	_, err := f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, pdfUpload())
	requireStatus(t, err, http.StatusTooManyRequests)
}

func TestDeleteAttachment(t *testing.T) {
	f := newAttachmentFixture(t)
	testutil.CreateSubscription(t, f.db, f.uploader.ID, model.PlanPropertyPackage)
	view, err := f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, pdfUpload())
	require.NoError(t, err)

	requireStatus(t, f.attachments.Delete(ctx, f.peer.ID, view.ID), http.StatusForbidden)

	var row model.MessageAttachment
	require.NoError(t, f.db.First(&row, view.ID).Error)
	require.NoError(t, f.attachments.Delete(ctx, f.uploader.ID, view.ID))

	exists, err := f.store.Exists(ctx, storage.BucketMessageAttachments, row.StorageKey)
	require.NoError(t, err)
	assert.False(t, exists)
	requireStatus(t, f.attachments.Delete(ctx, f.uploader.ID, view.ID), http.StatusNotFound)

	linked, err := f.attachments.Upload(ctx, f.uploader.ID, f.thread.ID, pdfUpload())
	require.NoError(t, err)
	msg := model.Message{ConversationID: f.thread.ID, SenderID: f.uploader.ID, Content: "adjunto"}
	require.NoError(t, f.db.Create(&msg).Error)
	require.NoError(t, f.db.Model(&model.MessageAttachment{}).Where("id = ?", linked.ID).Update("message_id", msg.ID).Error)
	requireStatus(t, f.attachments.Delete(ctx, f.uploader.ID, linked.ID), http.StatusBadRequest)
}
