package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CommunityProfileInput is the body of create and update
type CommunityProfileInput struct {
	Role         string   `json:"role" validate:"required,oneof=BUSCO OFREZCO"`
	City         string   `json:"city" validate:"required,max=100"`
	Neighborhood string   `json:"neighborhood" validate:"max=100"`
	BudgetMin    int      `json:"budgetMin" validate:"min=0"`
	BudgetMax    int      `json:"budgetMax" validate:"min=0"`
	Bio          string   `json:"bio" validate:"max=500"`
	Age          *int     `json:"age" validate:"omitempty,min=18,max=99"`
	Tags         []string `json:"tags" validate:"max=10,dive,min=1,max=30"`
}

func (in CommunityProfileInput) check() error {
	if in.Role != model.RoleBusco && in.Role != model.RoleOfrezco {
		return apperr.BadRequest("role must be BUSCO or OFREZCO")
	}
	if in.BudgetMin > in.BudgetMax {
		return apperr.BadRequest("budgetMin must not exceed budgetMax")
	}
	if len([]rune(in.Bio)) > 500 {
		return apperr.BadRequest("bio must be at most 500 characters")
	}
	if in.Age != nil && (*in.Age < 18 || *in.Age > 99) {
		return apperr.BadRequest("age must be between 18 and 99")
	}
	if len(in.Tags) > model.MaxCommunityTags {
		return apperr.BadRequest(fmt.Sprintf("at most %d tags are allowed", model.MaxCommunityTags))
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// CommunityFilter narrows the profile listing
type CommunityFilter struct {
	Role      string
	City      string
	BudgetMin *int
	BudgetMax *int
	Tags      []string
}

// PhotoView is a community photo with a short lived URL
type PhotoView struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CommunityProfileView is a profile with signed photo URLs
type CommunityProfileView struct {
	model.CommunityProfile
	PhotoURLs []string     `json:"photos"`
	User      *UserSummary `json:"user,omitempty"`
}

// Community manages roommate profiles and their photos
type Community struct {
	db        *gorm.DB
	store     storage.Store
	urls      *storage.URLBuilder
	validator *filevalidator.Validator
	limits    *Limits
	photoTTL  time.Duration
	now       func() time.Time
}

func NewCommunity(db *gorm.DB, store storage.Store, urls *storage.URLBuilder, validator *filevalidator.Validator, limits *Limits, photoTTL time.Duration) *Community {
	return &Community{db: db, store: store, urls: urls, validator: validator, limits: limits, photoTTL: photoTTL, now: time.Now}
}

func (s *Community) signPhotos(ctx context.Context, keys []string) []PhotoView {
	signed, failed := s.urls.SignedURLs(ctx, storage.BucketCommunityImages, keys, s.photoTTL)
	for _, f := range failed {
		logger.FromContext(ctx).Warn("Failed to sign community photo", zap.String("key", f.Key), zap.String("error", f.Error))
	}
	out := make([]PhotoView, 0, len(signed))
	for _, su := range signed {
		out = append(out, PhotoView{Key: su.Key, URL: su.URL, ExpiresAt: su.ExpiresAt})
	}
	return out
}

func (s *Community) view(ctx context.Context, p model.CommunityProfile, user *UserSummary) CommunityProfileView {
	photos := s.signPhotos(ctx, p.Photos)
	urls := make([]string, len(photos))
	for i, ph := range photos {
		urls[i] = ph.URL
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return CommunityProfileView{CommunityProfile: p, PhotoURLs: urls, User: user}
}

func (s *Community) mine(ctx context.Context, userID uint) (*model.CommunityProfile, error) {
	var p model.CommunityProfile
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error; err != nil {
		return nil, lookupErr(err, "community profile")
	}
	return &p, nil
}

// CreateProfile creates the caller's profile after the limit check
func (s *Community) CreateProfile(ctx context.Context, userID uint, in CommunityProfileInput) (*CommunityProfileView, error) {
	if err := in.check(); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&model.CommunityProfile{}).Where("user_id = ?", userID).Count(&existing).Error; err != nil {
		return nil, apperr.Internal("failed to check profile", err)
	}
	if existing > 0 {
		return nil, apperr.Conflict("you already have a community profile")
	}

	check, err := s.limits.CanCreateCommunityProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !check.Allowed {
		return nil, apperr.Forbidden(check.Reason).WithDetails(check)
	}
	if check.RequiresPayment {
		return nil, apperr.PaymentRequired("a community profile requires payment").WithDetails(check)
	}
	// a paid slot reached without payment means an active plan covers it
	paid := check.Purpose != ""

	p := model.CommunityProfile{
		UserID:       userID,
		Role:         in.Role,
		City:         strings.TrimSpace(in.City),
		Neighborhood: strings.TrimSpace(in.Neighborhood),
		BudgetMin:    in.BudgetMin,
		BudgetMax:    in.BudgetMax,
		Bio:          strings.TrimSpace(in.Bio),
		Age:          in.Age,
		Photos:       []string{},
		Tags:         normalizeTags(in.Tags),
		IsPaid:       paid,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, apperr.Internal("failed to create community profile", err)
	}
	logger.FromContext(ctx).Info("Community profile created", zap.Uint("user_id", userID), zap.String("role", p.Role))
	v := s.view(ctx, p, nil)
	return &v, nil
}

func (s *Community) MyProfile(ctx context.Context, userID uint) (*CommunityProfileView, error) {
	p, err := s.mine(ctx, userID)
	if err != nil {
		return nil, err
	}
	v := s.view(ctx, *p, nil)
	return &v, nil
}

func (s *Community) UpdateProfile(ctx context.Context, userID uint, in CommunityProfileInput) (*CommunityProfileView, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	p, err := s.mine(ctx, userID)
	if err != nil {
		return nil, err
	}
	p.Role = in.Role
	p.City = strings.TrimSpace(in.City)
	p.Neighborhood = strings.TrimSpace(in.Neighborhood)
	p.BudgetMin, p.BudgetMax = in.BudgetMin, in.BudgetMax
	p.Bio = strings.TrimSpace(in.Bio)
	p.Age = in.Age
	p.Tags = normalizeTags(in.Tags)
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, apperr.Internal("failed to update community profile", err)
	}
	v := s.view(ctx, *p, nil)
	return &v, nil
}

// DeleteProfile removes the caller's profile, likes and photos
func (s *Community) DeleteProfile(ctx context.Context, userID uint) error {
	p, err := s.mine(ctx, userID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("from_user_id = ? OR to_user_id = ?", userID, userID).Delete(&model.CommunityLike{}).Error; err != nil {
			return apperr.Internal("failed to delete likes", err)
		}
		if err := tx.Delete(p).Error; err != nil {
			return apperr.Internal("failed to delete community profile", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(p.Photos) > 0 {
		if err := s.store.Delete(ctx, storage.BucketCommunityImages, p.Photos...); err != nil {
			logger.FromContext(ctx).Warn("Failed to delete community photos", zap.Error(err))
		}
	}
	return nil
}

// ListProfiles lists other users' visible profiles, newest first
func (s *Community) ListProfiles(ctx context.Context, callerID uint, f CommunityFilter, page Page) ([]CommunityProfileView, Pagination, error) {
	q := s.db.WithContext(ctx).Model(&model.CommunityProfile{}).
		Where("user_id <> ? AND is_suspended = ?", callerID, false)
	if f.Role != "" {
		if f.Role != model.RoleBusco && f.Role != model.RoleOfrezco {
			return nil, Pagination{}, apperr.BadRequest("role must be BUSCO or OFREZCO")
		}
		q = q.Where("role = ?", f.Role)
	}
	if f.City != "" {
		q = q.Where("LOWER(city) = ?", strings.ToLower(strings.TrimSpace(f.City)))
	}
	if f.BudgetMin != nil {
		q = q.Where("budget_max >= ?", *f.BudgetMin)
	}
	if f.BudgetMax != nil {
		q = q.Where("budget_min <= ?", *f.BudgetMax)
	}
	for _, tag := range normalizeTags(f.Tags) {
		q = q.Where("CAST(tags AS TEXT) LIKE ?", `%"`+tag+`"%`)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to count profiles", err)
	}
	var rows []model.CommunityProfile
	if err := q.Session(&gorm.Session{}).Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).Find(&rows).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to list profiles", err)
	}

	ids := make([]uint, len(rows))
	for i, p := range rows {
		ids[i] = p.UserID
	}
	users, err := loadSummaries(ctx, s.db, ids)
	if err != nil {
		return nil, Pagination{}, apperr.Internal("failed to load users", err)
	}
	out := make([]CommunityProfileView, 0, len(rows))
	for _, p := range rows {
		var user *UserSummary
		if u, ok := users[p.UserID]; ok {
			user = &u
		}
		out = append(out, s.view(ctx, p, user))
	}
	return out, NewPagination(page, total), nil
}

// GetProfile returns one visible profile by its id
func (s *Community) GetProfile(ctx context.Context, callerID, id uint) (*CommunityProfileView, error) {
	var p model.CommunityProfile
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, lookupErr(err, "community profile")
	}
	if p.IsSuspended && p.UserID != callerID {
		return nil, apperr.NotFound("community profile not found")
	}
	users, err := loadSummaries(ctx, s.db, []uint{p.UserID})
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	var user *UserSummary
	if u, ok := users[p.UserID]; ok {
		user = &u
	}
	v := s.view(ctx, p, user)
	return &v, nil
}

// UploadPhotos validates and stores photos for the caller's profile
func (s *Community) UploadPhotos(ctx context.Context, userID uint, files []UploadInput) ([]PhotoView, error) {
	if len(files) == 0 {
		return nil, apperr.BadRequest("no files uploaded")
	}
	p, err := s.mine(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(p.Photos)+len(files) > model.MaxCommunityPhotos {
		return nil, apperr.BadRequest(fmt.Sprintf("a profile can have at most %d photos", model.MaxCommunityPhotos))
	}

	var problems []string
	mimes := make([]string, len(files))
	for i, f := range files {
		res := s.validator.ValidateImage(f.Data, f.ContentType, filevalidator.ImageOptions{})
		if !res.Valid {
			problems = append(problems, fmt.Sprintf("%s: %s", f.FileName, strings.Join(res.Errors, ", ")))
			continue
		}
		mimes[i] = res.Metadata.Type
	}
	if len(problems) > 0 {
		return nil, apperr.BadRequest("invalid images").WithDetails(problems)
	}

	now := s.now()
	keys := make([]string, 0, len(files))
	cleanup := func() {
		if len(keys) == 0 {
			return
		}
		if err := s.store.Delete(ctx, storage.BucketCommunityImages, keys...); err != nil {
			logger.FromContext(ctx).Warn("Failed to clean up community photos", zap.Error(err))
		}
	}
	for i, f := range files {
		key := storage.CommunityPhotoKey(userID, filevalidator.Extension(mimes[i]), now)
		if _, err := s.store.Put(ctx, storage.BucketCommunityImages, key, bytes.NewReader(f.Data), mimes[i]); err != nil {
			cleanup()
			return nil, apperr.Internal("failed to store photo", err)
		}
		keys = append(keys, key)
	}

	p.Photos = append(p.Photos, keys...)
	if err := s.db.WithContext(ctx).Model(p).Update("photos", p.Photos).Error; err != nil {
		cleanup()
		return nil, apperr.Internal("failed to save photos", err)
	}
	return s.signPhotos(ctx, keys), nil
}
