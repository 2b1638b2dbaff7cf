package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/events"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/filevalidator"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/storage"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultProvince    = "Misiones"
	DefaultCurrency    = "ARS"
	MaxPropertiesLimit = 50
)

// Bulk actions
const (
	BulkDelete         = "delete"
	BulkUpdateStatus   = "update-status"
	BulkToggleFeatured = "toggle-featured"
)

// PropertyView is a property with its images as public URLs
type PropertyView struct {
	model.Property
	ImageURLs []string `json:"images"`
}

// PropertyFilter narrows the public listing
type PropertyFilter struct {
	City         string
	PropertyType string
	Operation    string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Bedrooms     *int
	Featured     *bool
	Status       string
}

// PropertyInput is the body of create and full update
type PropertyInput struct {
	Title        string          `json:"title" validate:"required,min=5,max=200"`
	Description  string          `json:"description" validate:"max=5000"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency" validate:"omitempty,oneof=ARS USD"`
	PropertyType string          `json:"propertyType" validate:"required,oneof=casa departamento ph local oficina terreno quinta"`
	Operation    string          `json:"operation" validate:"required,oneof=alquiler venta"`
	City         string          `json:"city" validate:"required,max=100"`
	Province     string          `json:"province" validate:"max=100"`
	Address      string          `json:"address" validate:"max=255"`
	Bedrooms     int             `json:"bedrooms" validate:"min=0,max=50"`
	Bathrooms    int             `json:"bathrooms" validate:"min=0,max=50"`
	Area         float64         `json:"area" validate:"min=0"`
	Status       string          `json:"status" validate:"omitempty,oneof=AVAILABLE RENTED SOLD MAINTENANCE RESERVED"`
}

// BulkInput is the body of POST /api/properties/bulk
type BulkInput struct {
	Action      string `json:"action" validate:"required,oneof=delete update-status toggle-featured"`
	PropertyIDs []uint `json:"propertyIds"`
	Data        struct {
		Status string `json:"status"`
	} `json:"data"`
}

// BulkResult reports what a bulk action did
type BulkResult struct {
	Success   int      `json:"success"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
	Processed []uint   `json:"processed"`
}

// ReportInput is the body of a property report
type ReportInput struct {
	Reason  string `json:"reason" validate:"required,oneof=scam fake_images unrealistic_price wrong_location not_available false_info duplicate other"`
	Details string `json:"details" validate:"required,min=10,max=500"`
}

// ReportResult is the outcome of Report
type ReportResult struct {
	Success       bool   `json:"success"`
	ReportID      uint   `json:"reportId"`
	AutoSuspended bool   `json:"autoSuspended"`
	Message       string `json:"message"`
}

// Properties manages listings, their images and reports
type Properties struct {
	db                   *gorm.DB
	store                storage.Store
	urls                 *storage.URLBuilder
	validator            *filevalidator.Validator
	limits               *Limits
	notifier             *Notifier
	publisher            events.Publisher
	autoSuspendThreshold int
	now                  func() time.Time
}

func NewProperties(db *gorm.DB, store storage.Store, urls *storage.URLBuilder, validator *filevalidator.Validator,
	limits *Limits, notifier *Notifier, publisher events.Publisher, autoSuspendThreshold int) *Properties {
	if autoSuspendThreshold < 1 {
		autoSuspendThreshold = 2
	}
	return &Properties{
		db:                   db,
		store:                store,
		urls:                 urls,
		validator:            validator,
		limits:               limits,
		notifier:             notifier,
		publisher:            publisher,
		autoSuspendThreshold: autoSuspendThreshold,
		now:                  time.Now,
	}
}

func (s *Properties) view(p model.Property) PropertyView {
	urls := make([]string, 0, len(p.Images))
	for _, key := range p.Images {
		urls = append(urls, s.urls.PublicURL(storage.BucketPropertyImages, key))
	}
	return PropertyView{Property: p, ImageURLs: urls}
}

func (s *Properties) views(rows []model.Property) []PropertyView {
	out := make([]PropertyView, 0, len(rows))
	for _, p := range rows {
		out = append(out, s.view(p))
	}
	return out
}

// List returns the public listing, featured first then newest
func (s *Properties) List(ctx context.Context, f PropertyFilter, page Page) ([]PropertyView, Pagination, error) {
	status := f.Status
	if status == "" {
		status = model.PropertyAvailable
	}
	if status == model.PropertySuspended || !slices.Contains(model.PropertyStatuses, status) {
		return nil, Pagination{}, apperr.BadRequest("invalid status filter")
	}

	q := s.db.WithContext(ctx).Model(&model.Property{}).Where("status = ?", status)
	if f.City != "" {
		q = q.Where("LOWER(city) = ?", strings.ToLower(f.City))
	}
	if f.PropertyType != "" {
		q = q.Where("property_type = ?", f.PropertyType)
	}
	if f.Operation != "" {
		q = q.Where("operation = ?", f.Operation)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.Bedrooms != nil {
		q = q.Where("bedrooms >= ?", *f.Bedrooms)
	}
	if f.Featured != nil {
		q = q.Where("featured = ?", *f.Featured)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to count properties", err)
	}
	var rows []model.Property
	if err := q.Order("featured DESC, created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&rows).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to list properties", err)
	}
	return s.views(rows), NewPagination(page, total), nil
}

// Get returns one property and counts the view. Suspended properties are
// only visible to their owner.
func (s *Properties) Get(ctx context.Context, callerID, id uint) (*PropertyView, error) {
	var p model.Property
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, lookupErr(err, "property")
	}
	if !visibleTo(p, callerID) {
		return nil, apperr.NotFound("property not found")
	}
	if p.UserID != callerID {
		if err := s.db.WithContext(ctx).Model(&model.Property{}).Where("id = ?", p.ID).
			UpdateColumn("views", gorm.Expr("views + ?", 1)).Error; err != nil {
			logger.FromContext(ctx).Warn("Failed to count property view", zap.Uint("property_id", p.ID), zap.Error(err))
		} else {
			p.Views++
		}
	}
	v := s.view(p)
	return &v, nil
}

// visibleTo reports whether callerID may see p. Suspended listings are
// only visible to their owner.
func visibleTo(p model.Property, callerID uint) bool {
	return p.Status != model.PropertySuspended || p.UserID == callerID
}

// ListMine returns every listing of ownerID, newest first
func (s *Properties) ListMine(ctx context.Context, ownerID uint) ([]PropertyView, error) {
	var rows []model.Property
	if err := s.db.WithContext(ctx).Where("user_id = ?", ownerID).
		Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, apperr.Internal("failed to list properties", err)
	}
	return s.views(rows), nil
}

func validatePrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return apperr.BadRequest("price must be greater than zero")
	}
	return nil
}

// Create publishes a property after checking the owner's limits
func (s *Properties) Create(ctx context.Context, ownerID uint, in PropertyInput) (*PropertyView, error) {
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}

	p := model.Property{
		UserID:       ownerID,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Price:        in.Price,
		Currency:     in.Currency,
		PropertyType: in.PropertyType,
		Operation:    in.Operation,
		City:         strings.TrimSpace(in.City),
		Province:     strings.TrimSpace(in.Province),
		Address:      strings.TrimSpace(in.Address),
		Bedrooms:     in.Bedrooms,
		Bathrooms:    in.Bathrooms,
		Area:         in.Area,
		Status:       model.PropertyAvailable,
		Images:       []string{},
	}
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	if p.Province == "" {
		p.Province = DefaultProvince
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		check, err := s.limits.canPublishProperty(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if !check.Allowed {
			return apperr.Forbidden(check.Reason).WithDetails(check)
		}
		if check.RequiresPayment {
			return apperr.PaymentRequired("publishing more properties requires a paid plan").WithDetails(check)
		}
		if err := tx.Create(&p).Error; err != nil {
			return apperr.Internal("failed to create property", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("Property created", zap.Uint("property_id", p.ID), zap.Uint("user_id", ownerID))
	v := s.view(p)
	return &v, nil
}

func (s *Properties) owned(ctx context.Context, db *gorm.DB, ownerID, id uint) (*model.Property, error) {
	var p model.Property
	if err := db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, lookupErr(err, "property")
	}
	if p.UserID != ownerID {
		return nil, apperr.Forbidden("you do not own this property")
	}
	return &p, nil
}

// Update replaces the editable fields of an owned property. A suspended
// property keeps its status.
func (s *Properties) Update(ctx context.Context, ownerID, id uint, in PropertyInput) (*PropertyView, error) {
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, s.db, ownerID, id)
	if err != nil {
		return nil, err
	}

	p.Title = strings.TrimSpace(in.Title)
	p.Description = strings.TrimSpace(in.Description)
	p.Price = in.Price
	if in.Currency != "" {
		p.Currency = in.Currency
	}
	p.PropertyType = in.PropertyType
	p.Operation = in.Operation
	p.City = strings.TrimSpace(in.City)
	if in.Province != "" {
		p.Province = strings.TrimSpace(in.Province)
	}
	p.Address = strings.TrimSpace(in.Address)
	p.Bedrooms, p.Bathrooms, p.Area = in.Bedrooms, in.Bathrooms, in.Area
	if in.Status != "" {
		if p.Status == model.PropertySuspended {
			return nil, apperr.Forbidden("a suspended property cannot change status")
		}
		p.Status = in.Status
	}

	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return nil, apperr.Internal("failed to update property", err)
	}
	v := s.view(*p)
	return &v, nil
}

// Delete removes an owned property and its images
func (s *Properties) Delete(ctx context.Context, ownerID, id uint) error {
	p, err := s.owned(ctx, s.db, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(p).Error; err != nil {
		return apperr.Internal("failed to delete property", err)
	}
	s.removeImages(ctx, p.Images)
	logger.FromContext(ctx).Info("Property deleted", zap.Uint("property_id", p.ID))
	return nil
}

func (s *Properties) removeImages(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := s.store.Delete(ctx, storage.BucketPropertyImages, keys...); err != nil {
		logger.FromContext(ctx).Warn("Failed to delete property images", zap.Strings("keys", keys), zap.Error(err))
	}
}

// AddImages validates and stores images for an owned property. Either all
// files are stored or none.
func (s *Properties) AddImages(ctx context.Context, ownerID, id uint, files []UploadInput) ([]string, error) {
	if len(files) == 0 {
		return nil, apperr.BadRequest("no files uploaded")
	}
	p, err := s.owned(ctx, s.db, ownerID, id)
	if err != nil {
		return nil, err
	}
	if len(p.Images)+len(files) > model.MaxPropertyImages {
		return nil, apperr.BadRequest(fmt.Sprintf("a property can have at most %d images", model.MaxPropertyImages))
	}

	type checked struct {
		file UploadInput
		mime string
	}
	valid := make([]checked, 0, len(files))
	var problems []string
	for _, f := range files {
		res := s.validator.ValidateImage(f.Data, f.ContentType, filevalidator.ImageOptions{})
		if !res.Valid {
			problems = append(problems, fmt.Sprintf("%s: %s", f.FileName, strings.Join(res.Errors, ", ")))
			continue
		}
		valid = append(valid, checked{f, res.Metadata.Type})
	}
	if len(problems) > 0 {
		return nil, apperr.BadRequest("invalid images").WithDetails(problems)
	}

	now := s.now()
	keys := make([]string, 0, len(valid))
	for _, c := range valid {
		key := storage.PropertyImageKey(p.ID, filevalidator.Extension(c.mime), now)
		if _, err := s.store.Put(ctx, storage.BucketPropertyImages, key, bytes.NewReader(c.file.Data), c.mime); err != nil {
			s.removeImages(ctx, keys)
			return nil, apperr.Internal("failed to store image", err)
		}
		keys = append(keys, key)
	}

	p.Images = append(p.Images, keys...)
	if err := s.db.WithContext(ctx).Model(p).Update("images", p.Images).Error; err != nil {
		s.removeImages(ctx, keys)
		return nil, apperr.Internal("failed to save images", err)
	}

	urls := make([]string, len(keys))
	for i, key := range keys {
		urls[i] = s.urls.PublicURL(storage.BucketPropertyImages, key)
	}
	return urls, nil
}

// Bulk applies one action to several owned properties in one transaction
func (s *Properties) Bulk(ctx context.Context, ownerID uint, in BulkInput) (*BulkResult, error) {
	ids := uniqueIDs(in.PropertyIDs)
	if len(ids) == 0 {
		return nil, apperr.BadRequest("propertyIds must not be empty")
	}
	switch in.Action {
	case BulkDelete, BulkToggleFeatured:
	case BulkUpdateStatus:
		if in.Data.Status == model.PropertySuspended || !slices.Contains(model.PropertyStatuses, in.Data.Status) {
			return nil, apperr.BadRequest("invalid status")
		}
	default:
		return nil, apperr.BadRequest("invalid action")
	}

	var removed []string
	result := &BulkResult{Errors: []string{}, Processed: []uint{}}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []model.Property
		if err := tx.Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return apperr.Internal("failed to load properties", err)
		}
		if len(rows) != len(ids) {
			return apperr.NotFound("some properties do not exist")
		}
		for _, p := range rows {
			if p.UserID != ownerID {
				return apperr.Forbidden("some properties do not belong to you")
			}
		}

		for _, p := range rows {
			var err error
			switch in.Action {
			case BulkDelete:
				err = tx.Delete(&model.Property{}, p.ID).Error
				removed = append(removed, p.Images...)
			case BulkUpdateStatus:
				if p.Status == model.PropertySuspended {
					err = errors.New("property is suspended")
				} else {
					err = tx.Model(&model.Property{}).Where("id = ?", p.ID).Update("status", in.Data.Status).Error
				}
			case BulkToggleFeatured:
				err = tx.Model(&model.Property{}).Where("id = ?", p.ID).Update("featured", !p.Featured).Error
			}
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("property %d: %v", p.ID, err))
				continue
			}
			result.Success++
			result.Processed = append(result.Processed, p.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.removeImages(ctx, removed)
	return result, nil
}

// Report files a complaint against a property. Reaching the threshold of
// pending reports suspends the listing.
func (s *Properties) Report(ctx context.Context, reporterID, propertyID uint, in ReportInput) (*ReportResult, error) {
	if !slices.Contains(model.ReportReasons, in.Reason) {
		return nil, apperr.BadRequest("invalid report reason")
	}
	details := strings.TrimSpace(in.Details)
	if n := len([]rune(details)); n < 10 || n > 500 {
		return nil, apperr.BadRequest("details must be between 10 and 500 characters")
	}

	var p model.Property
	if err := s.db.WithContext(ctx).First(&p, propertyID).Error; err != nil {
		return nil, lookupErr(err, "property")
	}
	if p.UserID == reporterID {
		return nil, apperr.BadRequest("you cannot report your own property")
	}
	if !visibleTo(p, reporterID) {
		return nil, apperr.NotFound("property not found")
	}

	report := model.PropertyReport{
		PropertyID: p.ID,
		ReporterID: reporterID,
		Reason:     in.Reason,
		Details:    details,
		Status:     model.ReportPending,
	}
	suspended := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&model.PropertyReport{}).
			Where("property_id = ? AND reporter_id = ?", p.ID, reporterID).
			Count(&existing).Error; err != nil {
			return apperr.Internal("failed to check reports", err)
		}
		if existing > 0 {
			return apperr.BadRequest("you already reported this property")
		}
		if err := tx.Create(&report).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.BadRequest("you already reported this property")
			}
			return apperr.Internal("failed to create report", err)
		}

		var pending int64
		if err := tx.Model(&model.PropertyReport{}).
			Where("property_id = ? AND status = ?", p.ID, model.ReportPending).
			Count(&pending).Error; err != nil {
			return apperr.Internal("failed to count reports", err)
		}
		if int(pending) >= s.autoSuspendThreshold && p.Status != model.PropertySuspended {
			if err := tx.Model(&model.Property{}).Where("id = ?", p.ID).
				Update("status", model.PropertySuspended).Error; err != nil {
				return apperr.Internal("failed to suspend property", err)
			}
			suspended = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)
	log.Info("Property reported",
		zap.Uint("property_id", p.ID),
		zap.Uint("report_id", report.ID),
		zap.String("reason", in.Reason),
		zap.Bool("auto_suspended", suspended))

	if err := s.publisher.Publish(ctx, events.NewEvent(events.TypePropertyReported, reporterID, map[string]interface{}{
		"property_id":    p.ID,
		"report_id":      report.ID,
		"reason":         in.Reason,
		"auto_suspended": suspended,
	})); err != nil {
		log.Warn("Failed to publish report event", zap.Error(err))
	}

	data := map[string]interface{}{"propertyId": p.ID, "reportId": report.ID, "reason": in.Reason}
	if suspended {
		s.notifier.NotifyBestEffort(ctx, Notice{
			UserID:  p.UserID,
			Type:    model.NotificationPropertySuspended,
			Title:   "Property suspended",
			Message: fmt.Sprintf("Your property %q was suspended after several reports and will be reviewed.", p.Title),
			Data:    data,
		})
	}
	if _, err := s.notifier.NotifyAdmins(ctx, Notice{
		Type:    model.NotificationAdminReport,
		Title:   "New property report",
		Message: fmt.Sprintf("Property %d was reported for %s", p.ID, in.Reason),
		Data:    data,
	}); err != nil {
		log.Warn("Failed to notify admins", zap.Error(err))
	}

	message := "Report received, our team will review it"
	if suspended {
		message = "Report received, the property was suspended pending review"
	}
	return &ReportResult{Success: true, ReportID: report.ID, AutoSuspended: suspended, Message: message}, nil
}
