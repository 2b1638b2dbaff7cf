package service

import (
	"context"
	"strings"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReviewInput is the body of PUT /api/admin/reports/:id
type ReviewInput struct {
	Status          string `json:"status" validate:"required,oneof=RESOLVED DISMISSED"`
	RestoreProperty bool   `json:"restoreProperty"`
}

// ReportView is a report with the reported listing
type ReportView struct {
	model.PropertyReport
	Property *model.Property `json:"property,omitempty"`
}

// AdminStats are the moderation dashboard counters
type AdminStats struct {
	UsersByType         map[string]int64 `json:"usersByType"`
	PropertiesByStatus  map[string]int64 `json:"propertiesByStatus"`
	PendingReports      int64            `json:"pendingReports"`
	SuspendedProfiles   int64            `json:"suspendedProfiles"`
	ApprovedPayments    int64            `json:"approvedPayments"`
	ApprovedAmountTotal decimal.Decimal  `json:"approvedAmountTotal"`
}

// Admin holds the moderation operations
type Admin struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAdmin(db *gorm.DB) *Admin {
	return &Admin{db: db, now: time.Now}
}

// ListReports lists reports, optionally by status, newest first
func (s *Admin) ListReports(ctx context.Context, status string, page Page) ([]ReportView, Pagination, error) {
	q := s.db.WithContext(ctx).Model(&model.PropertyReport{})
	if status != "" {
		switch status {
		case model.ReportPending, model.ReportResolved, model.ReportDismissed:
		default:
			return nil, Pagination{}, apperr.BadRequest("invalid report status")
		}
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to count reports", err)
	}
	var reports []model.PropertyReport
	if err := q.Session(&gorm.Session{}).Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).Find(&reports).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to list reports", err)
	}

	ids := make([]uint, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, r.PropertyID)
	}
	properties := map[uint]model.Property{}
	if len(ids) > 0 {
		var rows []model.Property
		if err := s.db.WithContext(ctx).Unscoped().Where("id IN ?", ids).Find(&rows).Error; err != nil {
			return nil, Pagination{}, apperr.Internal("failed to load properties", err)
		}
		for _, p := range rows {
			properties[p.ID] = p
		}
	}

	out := make([]ReportView, 0, len(reports))
	for _, r := range reports {
		view := ReportView{PropertyReport: r}
		if p, ok := properties[r.PropertyID]; ok {
			view.Property = &p
		}
		out = append(out, view)
	}
	return out, NewPagination(page, total), nil
}

// ReviewReport closes a report. Restoring puts a suspended property back
// on the market.
func (s *Admin) ReviewReport(ctx context.Context, adminID, id uint, in ReviewInput) (*model.PropertyReport, error) {
	if in.Status != model.ReportResolved && in.Status != model.ReportDismissed {
		return nil, apperr.BadRequest("status must be RESOLVED or DISMISSED")
	}
	var report model.PropertyReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&report, id).Error; err != nil {
			return lookupErr(err, "report")
		}
		now := s.now()
		if err := tx.Model(&report).Updates(map[string]interface{}{
			"status":      in.Status,
			"reviewed_by": adminID,
			"reviewed_at": now,
		}).Error; err != nil {
			return apperr.Internal("failed to update report", err)
		}
		if in.RestoreProperty {
			if err := tx.Model(&model.Property{}).
				Where("id = ? AND status = ?", report.PropertyID, model.PropertySuspended).
				Update("status", model.PropertyAvailable).Error; err != nil {
				return apperr.Internal("failed to restore property", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Report reviewed",
		zap.Uint("report_id", report.ID),
		zap.Uint("admin_id", adminID),
		zap.String("status", in.Status),
		zap.Bool("restore_property", in.RestoreProperty))
	return &report, nil
}

// CommunityPostFilter narrows the moderation listing of community profiles
type CommunityPostFilter struct {
	Search    string
	Role      string
	City      string
	Status    string // active, suspended, all or empty
	SortBy    string // created_at, updated_at, city or budget
	SortOrder string // asc or desc
}

// CommunityPostStats counts profiles for the moderation dashboard
type CommunityPostStats struct {
	Total     int64 `json:"total"`
	Active    int64 `json:"active"`
	Suspended int64 `json:"suspended"`
	Offer     int64 `json:"offer"`
	Seek      int64 `json:"seek"`
}

var communitySortColumns = map[string]string{
	"":           "created_at",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"city":       "city",
	"budget":     "budget_max",
}

// ListCommunityPosts lists community profiles for moderation
func (s *Admin) ListCommunityPosts(ctx context.Context, f CommunityPostFilter, page Page) ([]model.CommunityProfile, Pagination, error) {
	column, ok := communitySortColumns[f.SortBy]
	if !ok {
		return nil, Pagination{}, apperr.BadRequest("invalid sortBy")
	}
	direction := "DESC"
	switch strings.ToLower(f.SortOrder) {
	case "", "desc":
	case "asc":
		direction = "ASC"
	default:
		return nil, Pagination{}, apperr.BadRequest("sortOrder must be asc or desc")
	}

	q := s.db.WithContext(ctx).Model(&model.CommunityProfile{})
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(bio) LIKE ? OR LOWER(city) LIKE ? OR LOWER(neighborhood) LIKE ?", like, like, like)
	}
	if f.Role != "" && f.Role != "all" {
		role := strings.ToUpper(f.Role)
		if role != model.RoleBusco && role != model.RoleOfrezco {
			return nil, Pagination{}, apperr.BadRequest("invalid role")
		}
		q = q.Where("role = ?", role)
	}
	if f.City != "" && f.City != "all" {
		q = q.Where("city = ?", f.City)
	}
	switch f.Status {
	case "", "all":
	case "active":
		q = q.Where("is_suspended = ?", false)
	case "suspended":
		q = q.Where("is_suspended = ?", true)
	default:
		return nil, Pagination{}, apperr.BadRequest("status must be active or suspended")
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to count profiles", err)
	}
	var rows []model.CommunityProfile
	if err := q.Session(&gorm.Session{}).Order(column + " " + direction + ", id " + direction).
		Offset(page.Offset()).Limit(page.Limit).Find(&rows).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to list profiles", err)
	}
	return rows, NewPagination(page, total), nil
}

// CommunityPostStats counts all profiles by moderation state and role
func (s *Admin) CommunityPostStats(ctx context.Context) (*CommunityPostStats, error) {
	var rows []struct {
		Role        string
		IsSuspended bool
		Count       int64
	}
	if err := s.db.WithContext(ctx).Model(&model.CommunityProfile{}).
		Select("role, is_suspended, COUNT(*) AS count").
		Group("role, is_suspended").Scan(&rows).Error; err != nil {
		return nil, apperr.Internal("failed to count profiles", err)
	}
	stats := &CommunityPostStats{}
	for _, r := range rows {
		stats.Total += r.Count
		if r.IsSuspended {
			stats.Suspended += r.Count
			continue
		}
		stats.Active += r.Count
		switch r.Role {
		case model.RoleOfrezco:
			stats.Offer += r.Count
		case model.RoleBusco:
			stats.Seek += r.Count
		}
	}
	return stats, nil
}

// SetCommunityPostSuspended suspends or restores a community profile
func (s *Admin) SetCommunityPostSuspended(ctx context.Context, id uint, suspended bool) (*model.CommunityProfile, error) {
	var p model.CommunityProfile
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, lookupErr(err, "community profile")
	}
	if err := s.db.WithContext(ctx).Model(&p).Update("is_suspended", suspended).Error; err != nil {
		return nil, apperr.Internal("failed to update profile", err)
	}
	return &p, nil
}

// ListUsers lists accounts, optionally by type
func (s *Admin) ListUsers(ctx context.Context, userType string, page Page) ([]model.User, Pagination, error) {
	q := s.db.WithContext(ctx).Model(&model.User{})
	if userType != "" {
		if !model.ValidUserType(userType) {
			return nil, Pagination{}, apperr.BadRequest("invalid user type")
		}
		q = q.Where("user_type = ?", userType)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to count users", err)
	}
	var rows []model.User
	if err := q.Session(&gorm.Session{}).Order("created_at DESC, id DESC").
		Offset(page.Offset()).Limit(page.Limit).Find(&rows).Error; err != nil {
		return nil, Pagination{}, apperr.Internal("failed to list users", err)
	}
	return rows, NewPagination(page, total), nil
}

type groupCount struct {
	Grp   string
	Count int64
}

func countBy(ctx context.Context, db *gorm.DB, m interface{}, column string) (map[string]int64, error) {
	var rows []groupCount
	if err := db.WithContext(ctx).Model(m).
		Select(column + " AS grp, COUNT(*) AS count").
		Group(column).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Grp] = r.Count
	}
	return out, nil
}

// sumApproved totals the approved payments, optionally of one user
func sumApproved(ctx context.Context, db *gorm.DB, userID uint) (int64, decimal.Decimal, error) {
	q := db.WithContext(ctx).Model(&model.Payment{}).Where("status = ?", model.PaymentApproved)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var amounts []decimal.Decimal
	if err := q.Pluck("amount", &amounts).Error; err != nil {
		return 0, decimal.Zero, err
	}
	return int64(len(amounts)), decimal.Sum(decimal.Zero, amounts...), nil
}

// Stats aggregates the moderation dashboard
func (s *Admin) Stats(ctx context.Context) (*AdminStats, error) {
	stats := &AdminStats{}
	var err error
	if stats.UsersByType, err = countBy(ctx, s.db, &model.User{}, "user_type"); err != nil {
		return nil, apperr.Internal("failed to count users", err)
	}
	if stats.PropertiesByStatus, err = countBy(ctx, s.db, &model.Property{}, "status"); err != nil {
		return nil, apperr.Internal("failed to count properties", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.PropertyReport{}).
		Where("status = ?", model.ReportPending).Count(&stats.PendingReports).Error; err != nil {
		return nil, apperr.Internal("failed to count reports", err)
	}
	if err := s.db.WithContext(ctx).Model(&model.CommunityProfile{}).
		Where("is_suspended = ?", true).Count(&stats.SuspendedProfiles).Error; err != nil {
		return nil, apperr.Internal("failed to count profiles", err)
	}
	if stats.ApprovedPayments, stats.ApprovedAmountTotal, err = sumApproved(ctx, s.db, 0); err != nil {
		return nil, apperr.Internal("failed to sum payments", err)
	}
	return stats, nil
}
