package service

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/ratelimit"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Attachment tiers
const (
	TierFree     = "free"
	TierPro      = "pro"
	TierBusiness = "business"
)

// AttachmentPlan are the upload rules of a tier
type AttachmentPlan struct {
	Tier               string   `json:"tier"`
	Allowed            bool     `json:"allowed"`
	MaxFilesPerMessage int      `json:"maxFilesPerMessage"`
	MaxFileSize        int64    `json:"maxFileSize"`
	AllowedTypes       []string `json:"allowedTypes"`
	DailyQuota         int      `json:"dailyQuota"`
	PerMinute          int      `json:"perMinute"`
	Burst              int      `json:"burst"`
}

var (
	proTypes      = append(slices.Clone(filevalidator.ImageTypes), filevalidator.TypePDF)
	businessTypes = append(slices.Clone(proTypes), filevalidator.TypeDoc, filevalidator.TypeDocx, filevalidator.TypeText)
)

var attachmentPlans = map[string]AttachmentPlan{
	TierFree: {Tier: TierFree},
	TierPro: {
		Tier: TierPro, Allowed: true, MaxFilesPerMessage: 5, MaxFileSize: 10 << 20,
		AllowedTypes: proTypes, DailyQuota: 50, PerMinute: 10, Burst: 5,
	},
	TierBusiness: {
		Tier: TierBusiness, Allowed: true, MaxFilesPerMessage: 10, MaxFileSize: 25 << 20,
		AllowedTypes: businessTypes, DailyQuota: 200, PerMinute: 30, Burst: 10,
	},
}

// AttachmentPlanFor resolves the tier from the user's active subscriptions
func AttachmentPlanFor(ctx context.Context, db *gorm.DB, userID uint, now time.Time) (AttachmentPlan, error) {
	var plans []string
	err := db.WithContext(ctx).Model(&model.Subscription{}).
		Where("user_id = ? AND status = ? AND starts_at <= ? AND expires_at > ?", userID, model.SubscriptionActive, now, now).
		Pluck("plan", &plans).Error
	if err != nil {
		return AttachmentPlan{}, err
	}
	switch {
	case slices.Contains(plans, model.PlanPremium):
		return attachmentPlans[TierBusiness], nil
	case len(plans) > 0:
		return attachmentPlans[TierPro], nil
	default:
		return attachmentPlans[TierFree], nil
	}
}

// RateLimitInfo travels as error details so handlers can set headers
type RateLimitInfo struct {
	Limit      int `json:"limit"`
	Remaining  int `json:"remaining"`
	RetryAfter int `json:"retryAfter"`
}

// Headers returns the X-RateLimit-* headers for the info
func (i RateLimitInfo) Headers() map[string]string {
	return map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(i.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(i.Remaining),
		"Retry-After":           strconv.Itoa(i.RetryAfter),
	}
}

// UploadInput is one uploaded file
type UploadInput struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Attachments stores message attachments before they are linked
type Attachments struct {
	db        *gorm.DB
	store     storage.Store
	urls      *storage.URLBuilder
	validator *filevalidator.Validator
	limiters  map[string]*ratelimit.Keyed
	ttl       time.Duration
	now       func() time.Time
}

func NewAttachments(db *gorm.DB, store storage.Store, urls *storage.URLBuilder, validator *filevalidator.Validator, ttl time.Duration) *Attachments {
	limiters := make(map[string]*ratelimit.Keyed)
	for tier, plan := range attachmentPlans {
		if plan.Allowed {
			limiters[tier] = ratelimit.NewKeyed(plan.PerMinute, plan.Burst)
		}
	}
	return &Attachments{
		db:        db,
		store:     store,
		urls:      urls,
		validator: validator,
		limiters:  limiters,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Upload validates and stores a file for threadID. The row stays unlinked
// until a message claims it.
func (a *Attachments) Upload(ctx context.Context, uploaderID, threadID uint, in UploadInput) (*AttachmentView, error) {
	log := logger.FromContext(ctx)
	if len(in.Data) == 0 {
		return nil, apperr.BadRequest("file is required")
	}
	if threadID == 0 {
		return nil, apperr.BadRequest("threadId is required")
	}

	thread, err := participantThread(ctx, a.db, uploaderID, threadID)
	if err != nil {
		return nil, err
	}

	now := a.now()
	plan, err := AttachmentPlanFor(ctx, a.db, uploaderID, now)
	if err != nil {
		return nil, apperr.Internal("failed to resolve plan", err)
	}
	if !plan.Allowed {
		return nil, apperr.Forbidden("your plan does not include attachments").WithDetails(plan)
	}
	if int64(len(in.Data)) > plan.MaxFileSize {
		return nil, apperr.BadRequest(fmt.Sprintf("file too large, maximum allowed %s", filevalidator.FormatFileSize(plan.MaxFileSize)))
	}
	if !slices.Contains(plan.AllowedTypes, in.ContentType) {
		return nil, apperr.BadRequest("file type not allowed: " + in.ContentType)
	}

	var today int64
	if err := a.db.WithContext(ctx).Model(&model.MessageAttachment{}).
		Where("uploader_id = ? AND created_at > ?", uploaderID, now.Add(-24*time.Hour)).
		Count(&today).Error; err != nil {
		return nil, apperr.Internal("failed to count uploads", err)
	}
	if int(today) >= plan.DailyQuota {
		return nil, apperr.TooManyRequests("daily attachment quota reached").
			WithDetails(RateLimitInfo{Limit: plan.DailyQuota, Remaining: 0, RetryAfter: int((24 * time.Hour).Seconds())})
	}
	if d := a.limiters[plan.Tier].Allow(strconv.FormatUint(uint64(uploaderID), 10)); !d.Allowed {
		return nil, apperr.TooManyRequests("too many uploads, slow down").
			WithDetails(RateLimitInfo{Limit: d.Limit, Remaining: d.Remaining, RetryAfter: int(d.RetryAfter.Seconds()) + 1})
	}

	var result filevalidator.Result
	if filevalidator.IsImage(in.ContentType) {
		result = a.validator.ValidateImage(in.Data, in.ContentType, filevalidator.ImageOptions{
			MaxSize:      plan.MaxFileSize,
			AllowedTypes: plan.AllowedTypes,
		})
	} else {
		result = a.validator.ValidateDocument(in.Data, in.ContentType, plan.MaxFileSize)
	}
	if !result.Valid {
		return nil, apperr.BadRequest("file validation failed").WithDetails(result.Errors)
	}

	row := model.MessageAttachment{
		ConversationID: thread.ID,
		UploaderID:     uploaderID,
		FileName:       storage.SanitizeFileName(in.FileName),
		MimeType:       result.Metadata.Type,
		SizeBytes:      result.Metadata.Size,
		StorageKey:     storage.AttachmentKey(thread.ID, in.FileName, now),
		SHA256:         result.Metadata.Hash,
		CreatedAt:      now,
	}
	if filevalidator.IsImage(row.MimeType) {
		if w, h, ok := filevalidator.Dimensions(in.Data); ok {
			row.Width, row.Height = &w, &h
		}
	}

	if _, err := a.store.Put(ctx, storage.BucketMessageAttachments, row.StorageKey, bytes.NewReader(in.Data), row.MimeType); err != nil {
		return nil, apperr.Internal("failed to store attachment", err)
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		if derr := a.store.Delete(ctx, storage.BucketMessageAttachments, row.StorageKey); derr != nil {
			log.Warn("Failed to clean up attachment object", zap.String("key", row.StorageKey), zap.Error(derr))
		}
		return nil, apperr.Internal("failed to save attachment", err)
	}

	log.Info("Attachment uploaded",
		zap.Uint("attachment_id", row.ID),
		zap.Uint("thread_id", thread.ID),
		zap.String("mime_type", row.MimeType),
		zap.Int64("size", row.SizeBytes))

	return a.view(row)
}

func (a *Attachments) view(row model.MessageAttachment) (*AttachmentView, error) {
	view := toAttachmentView(row)
	signed, err := a.urls.SignedURL(storage.BucketMessageAttachments, row.StorageKey, a.ttl)
	if err != nil {
		return nil, apperr.Internal("failed to sign attachment URL", err)
	}
	view.URL, view.ExpiresAt = signed.URL, signed.ExpiresAt
	return &view, nil
}

func (a *Attachments) load(ctx context.Context, id uint) (*model.MessageAttachment, error) {
	var row model.MessageAttachment
	if err := a.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return nil, lookupErr(err, "attachment")
	}
	return &row, nil
}

// Get returns the attachment with a fresh signed URL. Only participants of
// its conversation may read it.
func (a *Attachments) Get(ctx context.Context, callerID, id uint) (*AttachmentView, error) {
	row, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}
	var thread model.Conversation
	if err := a.db.WithContext(ctx).First(&thread, row.ConversationID).Error; err != nil {
		return nil, lookupErr(err, "thread")
	}
	if !thread.Involves(callerID) {
		return nil, apperr.Forbidden("you do not have access to this attachment")
	}
	return a.view(*row)
}

// Delete removes an unlinked attachment of the caller
func (a *Attachments) Delete(ctx context.Context, callerID, id uint) error {
	row, err := a.load(ctx, id)
	if err != nil {
		return err
	}
	if row.UploaderID != callerID {
		return apperr.Forbidden("only the uploader can delete an attachment")
	}
	if row.MessageID != nil {
		return apperr.BadRequest("attachment is already linked to a message")
	}

	res := a.db.WithContext(ctx).Where("id = ? AND message_id IS NULL", row.ID).Delete(&model.MessageAttachment{})
	if res.Error != nil {
		return apperr.Internal("failed to delete attachment", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("attachment was linked while deleting")
	}
	if err := a.store.Delete(ctx, storage.BucketMessageAttachments, row.StorageKey); err != nil {
		logger.FromContext(ctx).Warn("Failed to delete attachment object", zap.String("key", row.StorageKey), zap.Error(err))
	}
	return nil
}
