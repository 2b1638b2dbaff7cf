package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var avatarTypes = []string{filevalidator.TypeJPEG, filevalidator.TypeJPG, filevalidator.TypePNG, filevalidator.TypeWebP}

// TokenIssuer signs session tokens
type TokenIssuer interface {
	GenerateToken(userID uint, email, userType string, isAdmin bool) (string, error)
}

// RegisterInput is the body of POST /auth/register
type RegisterInput struct {
	Name          string `json:"name" validate:"required,min=2,max=100"`
	Email         string `json:"email" validate:"required,email,max=150"`
	Phone         string `json:"phone" validate:"max=30"`
	Password      string `json:"password" validate:"required,min=6,max=72"`
	UserType      string `json:"userType" validate:"required,oneof=inquilino dueno_directo inmobiliaria"`
	CompanyName   string `json:"companyName" validate:"max=150"`
	LicenseNumber string `json:"licenseNumber" validate:"max=50"`
}

// LoginInput is the body of POST /auth/login
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileInput is a partial profile update
type ProfileInput struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Phone       *string `json:"phone" validate:"omitempty,max=30"`
	Bio         *string `json:"bio" validate:"omitempty,max=1000"`
	CompanyName *string `json:"companyName" validate:"omitempty,max=150"`
}

// ChangePasswordInput is the body of POST /api/users/change-password
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

// AuthResult is returned by register and login
type AuthResult struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// AvatarResult is returned after an avatar upload
type AvatarResult struct {
	ImageURL    string `json:"imageUrl"`
	OriginalURL string `json:"originalUrl"`
	Message     string `json:"message"`
	CacheBusted bool   `json:"cacheBusted"`
}

// Users handles accounts, profiles and avatars
type Users struct {
	db        *gorm.DB
	tokens    TokenIssuer
	store     storage.Store
	urls      *storage.URLBuilder
	validator *filevalidator.Validator
	now       func() time.Time
}

func NewUsers(db *gorm.DB, tokens TokenIssuer, store storage.Store, urls *storage.URLBuilder, validator *filevalidator.Validator) *Users {
	return &Users{db: db, tokens: tokens, store: store, urls: urls, validator: validator, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Users) issue(user model.User) (*AuthResult, error) {
	token, err := s.tokens.GenerateToken(user.ID, user.Email, user.UserType, user.IsAdmin)
	if err != nil {
		return nil, apperr.Internal("failed to generate token", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

// Register creates an account and returns a session token
func (s *Users) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.CompanyName = strings.TrimSpace(in.CompanyName)
	if len([]rune(in.Name)) < 2 {
		return nil, apperr.BadRequest("name must be at least 2 characters")
	}
	if len(in.Password) < 6 {
		return nil, apperr.BadRequest("password must be at least 6 characters")
	}
	if !model.ValidUserType(in.UserType) {
		return nil, apperr.BadRequest("invalid user type")
	}
	if in.UserType == model.UserTypeInmobiliaria && in.CompanyName == "" {
		return nil, apperr.BadRequest("companyName is required for inmobiliarias")
	}
	email := normalizeEmail(in.Email)

	var taken int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&model.User{}).Where("email = ?", email).Count(&taken).Error; err != nil {
		return nil, apperr.Internal("failed to check email", err)
	}
	if taken > 0 {
		return nil, apperr.Conflict("a user with this email already exists")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("failed to hash password", err)
	}
	user := model.User{
		Name:          in.Name,
		Email:         email,
		Phone:         strings.TrimSpace(in.Phone),
		Password:      string(hash),
		UserType:      in.UserType,
		CompanyName:   in.CompanyName,
		LicenseNumber: strings.TrimSpace(in.LicenseNumber),
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("a user with this email already exists")
		}
		return nil, apperr.Internal("failed to create user", err)
	}

	logger.FromContext(ctx).Info("User registered", zap.Uint("user_id", user.ID), zap.String("user_type", user.UserType))
	return s.issue(user)
}

// Login checks the credentials. Unknown email and wrong password fail the same way.
func (s *Users) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	var user model.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(in.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)); err != nil {
		return nil, apperr.Unauthorized("invalid credentials")
	}
	return s.issue(user)
}

func (s *Users) Profile(ctx context.Context, userID uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, lookupErr(err, "user")
	}
	return &user, nil
}

func (s *Users) UpdateProfile(ctx context.Context, userID uint, in ProfileInput) (*model.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if len([]rune(name)) < 2 {
			return nil, apperr.BadRequest("name must be at least 2 characters")
		}
		updates["name"] = name
	}
	if in.Phone != nil {
		updates["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.Bio != nil {
		updates["bio"] = strings.TrimSpace(*in.Bio)
	}
	if in.CompanyName != nil {
		company := strings.TrimSpace(*in.CompanyName)
		if user.UserType == model.UserTypeInmobiliaria && company == "" {
			return nil, apperr.BadRequest("companyName is required for inmobiliarias")
		}
		updates["company_name"] = company
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, apperr.Internal("failed to update profile", err)
	}
	return s.Profile(ctx, userID)
}

func (s *Users) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.CurrentPassword)); err != nil {
		return apperr.BadRequest("current password is incorrect")
	}
	if len(in.NewPassword) < 6 {
		return apperr.BadRequest("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("failed to hash password", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password", string(hash)).Error; err != nil {
		return apperr.Internal("failed to update password", err)
	}
	return nil
}

// UploadAvatar replaces the caller's avatar. The new object is removed
// again when the user row cannot be updated, the old one after success.
func (s *Users) UploadAvatar(ctx context.Context, userID uint, in UploadInput) (*AvatarResult, error) {
	log := logger.FromContext(ctx)
	if len(in.Data) == 0 {
		return nil, apperr.BadRequest("file is required")
	}

	res := s.validator.ValidateImage(in.Data, in.ContentType, filevalidator.ImageOptions{
		MaxSize:      filevalidator.MaxAvatarSize,
		AllowedTypes: avatarTypes,
	})
	if !res.Valid {
		return nil, apperr.BadRequest("invalid image").WithDetails(res.Errors)
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	oldURL := user.ProfileImage

	now := s.now()
	key := storage.AvatarKey(userID, filevalidator.Extension(res.Metadata.Type), now)
	if _, err := s.store.Put(ctx, storage.BucketAvatars, key, bytes.NewReader(in.Data), res.Metadata.Type); err != nil {
		return nil, apperr.Internal("failed to store avatar", err)
	}
	publicURL := s.urls.PublicURL(storage.BucketAvatars, key)

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"profile_image": publicURL,
		"updated_at":    now,
	}).Error; err != nil {
		if derr := s.store.Delete(ctx, storage.BucketAvatars, key); derr != nil {
			log.Warn("Failed to clean up avatar object", zap.String("key", key), zap.Error(derr))
		}
		return nil, apperr.Internal("failed to update profile image", err)
	}

	if oldKey, ok := storage.ExtractKey(oldURL, storage.BucketAvatars); ok && oldKey != key {
		if err := s.store.Delete(ctx, storage.BucketAvatars, oldKey); err != nil {
			log.Warn("Failed to delete previous avatar", zap.String("key", oldKey), zap.Error(err))
		}
	}

	log.Info("Avatar updated", zap.Uint("user_id", userID), zap.String("key", key))
	return &AvatarResult{
		ImageURL:    storage.CacheBust(publicURL, now),
		OriginalURL: publicURL,
		Message:     "Avatar updated",
		CacheBusted: true,
	}, nil
}

// Avatar returns the cache busted avatar URL or nil when none is set
func (s *Users) Avatar(ctx context.Context, userID uint) (*string, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.ProfileImage == "" {
		return nil, nil
	}
	u := storage.CacheBust(user.ProfileImage, user.UpdatedAt)
	return &u, nil
}

// DeleteAvatar clears the avatar and removes the object when it is ours
func (s *Users) DeleteAvatar(ctx context.Context, userID uint) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	oldURL := user.ProfileImage
	if oldURL == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(user).Update("profile_image", "").Error; err != nil {
		return apperr.Internal("failed to clear profile image", err)
	}
	if key, ok := storage.ExtractKey(oldURL, storage.BucketAvatars); ok {
		if err := s.store.Delete(ctx, storage.BucketAvatars, key); err != nil {
			logger.FromContext(ctx).Warn("Failed to delete avatar object", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}
