package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultRoommatesLimit = 12
	MaxRoommatesLimit     = 50

	maxSlugBase  = 50
	minQueryTerm = 2
)

// Roommate feed orders
const (
	OrderRecent   = "recent"
	OrderTrending = "trending"
)

const dateLayout = "2006-01-02"

// RoommateInput is the body of POST /api/roommates. AvailableFrom is a
// calendar date, today or later.
type RoommateInput struct {
	Title         string   `json:"title" validate:"required,min=5,max=100"`
	Description   string   `json:"description" validate:"required,min=20,max=2000"`
	City          string   `json:"city" validate:"required,max=100"`
	Province      string   `json:"province" validate:"max=100"`
	RoomType      string   `json:"roomType" validate:"required,oneof=PRIVATE SHARED"`
	MonthlyRent   int      `json:"monthlyRent" validate:"required,min=1,max=10000000"`
	AvailableFrom string   `json:"availableFrom" validate:"required"`
	Preferences   string   `json:"preferences" validate:"max=500"`
	Images        []string `json:"images" validate:"max=10,dive,url"`
}

// RoommateFilter narrows the public feed. Zero values do not filter.
type RoommateFilter struct {
	Query         string     `json:"q,omitempty"`
	City          string     `json:"city,omitempty"`
	Province      string     `json:"province,omitempty"`
	RoomType      string     `json:"roomType,omitempty"`
	MinRent       *int       `json:"minRent,omitempty"`
	MaxRent       *int       `json:"maxRent,omitempty"`
	AvailableFrom *time.Time `json:"availableFrom,omitempty"`
	Order         string     `json:"order"`
}

// Validate checks the filter ranges and fills the default order
func (f *RoommateFilter) Validate() error {
	if f.Order == "" {
		f.Order = OrderRecent
	}
	if f.Order != OrderRecent && f.Order != OrderTrending {
		return apperr.BadRequest("order must be recent or trending")
	}
	if f.RoomType != "" && f.RoomType != model.RoomPrivate && f.RoomType != model.RoomShared {
		return apperr.BadRequest("roomType must be PRIVATE or SHARED")
	}
	if (f.MinRent != nil && *f.MinRent < 0) || (f.MaxRent != nil && *f.MaxRent < 0) {
		return apperr.BadRequest("rent filters must not be negative")
	}
	if f.MinRent != nil && f.MaxRent != nil && *f.MinRent > *f.MaxRent {
		return apperr.BadRequest("minRent must not exceed maxRent")
	}
	return nil
}

// RoommateView is a post with its cover image
type RoommateView struct {
	model.RoommatePost
	CoverURL      *string `json:"coverUrl"`
	IsPlaceholder bool    `json:"isPlaceholder"`
	ImagesCount   int     `json:"imagesCount"`
}

func roommateView(p model.RoommatePost) RoommateView {
	v := RoommateView{RoommatePost: p, IsPlaceholder: true, ImagesCount: len(p.Images)}
	if v.Images == nil {
		v.Images = []string{}
	}
	if len(p.Images) > 0 {
		cover := p.Images[0]
		v.CoverURL = &cover
		v.IsPlaceholder = false
	}
	return v
}

// Roommates manages room sharing posts
type Roommates struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRoommates(db *gorm.DB) *Roommates {
	return &Roommates{db: db, now: time.Now}
}

var (
	slugUnsafe = regexp.MustCompile(`[^a-z0-9_\s-]`)
	whitespace = regexp.MustCompile(`\s+`)
	slugDashes = regexp.MustCompile(`-+`)
)

// RoommateSlug derives a URL slug from title with a random suffix
func RoommateSlug(title, suffix string) string {
	base := slugUnsafe.ReplaceAllString(strings.ToLower(strings.TrimSpace(title)), "")
	base = whitespace.ReplaceAllString(base, "-")
	base = slugDashes.ReplaceAllString(base, "-")
	if len(base) > maxSlugBase {
		base = base[:maxSlugBase]
	}
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return base + "-" + suffix
}

// ParseDate reads a calendar date as YYYY-MM-DD or RFC 3339
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, apperr.BadRequest("invalid date, expected YYYY-MM-DD")
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// Create stores a draft post owned by userID
func (s *Roommates) Create(ctx context.Context, userID uint, in RoommateInput) (*RoommateView, error) {
	title := whitespace.ReplaceAllString(strings.TrimSpace(in.Title), " ")
	if strings.ContainsAny(title, "<>") {
		return nil, apperr.BadRequest("title must not contain < or >")
	}
	available, err := ParseDate(in.AvailableFrom)
	if err != nil {
		return nil, err
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if available.Before(today) {
		return nil, apperr.BadRequest("availableFrom must be today or later")
	}

	province := strings.TrimSpace(in.Province)
	if province == "" {
		province = DefaultProvince
	}
	images := in.Images
	if images == nil {
		images = []string{}
	}
	p := model.RoommatePost{
		UserID:        userID,
		Slug:          RoommateSlug(title, uuid.NewString()),
		Title:         title,
		Description:   strings.TrimSpace(in.Description),
		City:          strings.TrimSpace(in.City),
		Province:      province,
		RoomType:      in.RoomType,
		MonthlyRent:   in.MonthlyRent,
		AvailableFrom: available,
		Preferences:   strings.TrimSpace(in.Preferences),
		Images:        images,
		Status:        model.RoommateDraft,
		IsActive:      true,
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("a roommate post with this slug already exists")
		}
		return nil, apperr.Internal("failed to create roommate post", err)
	}

	logger.FromContext(ctx).Info("Roommate post created", zap.Uint("post_id", p.ID), zap.Uint("user_id", userID))
	v := roommateView(p)
	return &v, nil
}

// Publish makes an owned draft visible in the feed
func (s *Roommates) Publish(ctx context.Context, userID uint, slug string) (*RoommateView, error) {
	var p model.RoommatePost
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error; err != nil {
		return nil, lookupErr(err, "roommate post")
	}
	if p.UserID != userID {
		return nil, apperr.Forbidden("you do not own this post")
	}
	if p.Status == model.RoommatePublished {
		v := roommateView(p)
		return &v, nil
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&p).Updates(map[string]interface{}{
		"status":       model.RoommatePublished,
		"published_at": now,
	}).Error; err != nil {
		return nil, apperr.Internal("failed to publish roommate post", err)
	}
	p.Status, p.PublishedAt = model.RoommatePublished, &now
	v := roommateView(p)
	return &v, nil
}

// Get returns a post by slug and counts the view. Unlisted posts are only
// visible to their owner.
func (s *Roommates) Get(ctx context.Context, callerID uint, slug string) (*RoommateView, error) {
	var p model.RoommatePost
	if err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error; err != nil {
		return nil, lookupErr(err, "roommate post")
	}
	if !p.Listed() && p.UserID != callerID {
		return nil, apperr.NotFound("roommate post not found")
	}
	if p.UserID != callerID {
		if err := s.db.WithContext(ctx).Model(&model.RoommatePost{}).Where("id = ?", p.ID).
			UpdateColumn("views_count", gorm.Expr("views_count + ?", 1)).Error; err != nil {
			logger.FromContext(ctx).Warn("Failed to count roommate view", zap.Uint("post_id", p.ID), zap.Error(err))
		} else {
			p.ViewsCount++
		}
	}
	v := roommateView(p)
	return &v, nil
}

// List returns the public feed: published, active posts only
func (s *Roommates) List(ctx context.Context, f RoommateFilter, page Page) ([]RoommateView, Pagination, error) {
	if err := f.Validate(); err != nil {
		return nil, Pagination{}, err
	}

	q := s.db.WithContext(ctx).Model(&model.RoommatePost{}).
		Where("status = ? AND is_active = ?", model.RoommatePublished, true)
	if f.City != "" {
		q = q.Where("LOWER(city) LIKE ?", "%"+strings.ToLower(f.City)+"%")
	}
	if f.Province != "" {
		q = q.Where("LOWER(province) LIKE ?", "%"+strings.ToLower(f.Province)+"%")
	}
	if f.RoomType != "" {
		q = q.Where("room_type = ?", f.RoomType)
	}
	if f.MinRent != nil {
		q = q.Where("monthly_rent >= ?", *f.MinRent)
	}
	if f.MaxRent != nil {
		q = q.Where("monthly_rent <= ?", *f.MaxRent)
	}
	if f.AvailableFrom != nil {
		q = q.Where("available_from >= ?", *f.AvailableFrom)
	}
	if term := strings.TrimSpace(f.Query); len(term) >= minQueryTerm {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(city) LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to count roommate posts", err)
	}

	order := "published_at DESC, id DESC"
	if f.Order == OrderTrending {
		order = "likes_count DESC, views_count DESC, published_at DESC, id DESC"
	}
	var rows []model.RoommatePost
	if err := q.Order(order).Offset(page.Offset()).Limit(page.Limit).Find(&rows).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to list roommate posts", err)
	}

	out := make([]RoommateView, 0, len(rows))
	for _, p := range rows {
		out = append(out, roommateView(p))
	}
	return out, NewPagination(page, total), nil
}
