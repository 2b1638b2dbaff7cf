// Package testutil builds in-memory databases and fixtures for tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/norbi4050/misiones-arrienda-sub010/internal/model"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const Password = "secret123"

var seq atomic.Uint64

// NewDB returns a migrated in-memory SQLite database. The pool is limited to
// one connection so every query sees the same database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	require.NoError(t, database.InstrumentMetrics(db))
	return db
}

var passwordHash = func() string {
	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(hash)
}()

// CreateUser inserts a user of userType with password Password
func CreateUser(t *testing.T, db *gorm.DB, userType string) *model.User {
	t.Helper()
	n := seq.Add(1)
	user := &model.User{
		Name:     fmt.Sprintf("User %d", n),
		Email:    fmt.Sprintf("user%d@example.com", n),
		Password: passwordHash,
		UserType: userType,
	}
	if userType == model.UserTypeInmobiliaria {
		user.CompanyName = "Inmobiliaria Test"
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateAdmin inserts an admin user
func CreateAdmin(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()
	user := CreateUser(t, db, model.UserTypeInquilino)
	require.NoError(t, db.Model(user).Update("is_admin", true).Error)
	user.IsAdmin = true
	return user
}

// CreateProperty inserts an AVAILABLE property owned by ownerID
func CreateProperty(t *testing.T, db *gorm.DB, ownerID uint) *model.Property {
	t.Helper()
	p := &model.Property{
		UserID:       ownerID,
		Title:        "Departamento céntrico",
		Description:  "Dos ambientes cerca de la plaza",
		Price:        decimal.NewFromInt(150000),
		Currency:     "ARS",
		PropertyType: "departamento",
		Operation:    "alquiler",
		City:         "Posadas",
		Province:     "Misiones",
		Bedrooms:     1,
		Bathrooms:    1,
		Status:       model.PropertyAvailable,
		Images:       []string{},
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateProfile inserts a community profile with role for userID
func CreateProfile(t *testing.T, db *gorm.DB, userID uint, role string) *model.CommunityProfile {
	t.Helper()
	p := &model.CommunityProfile{
		UserID:    userID,
		Role:      role,
		City:      "Posadas",
		BudgetMin: 50000,
		BudgetMax: 120000,
		Photos:    []string{},
		Tags:      []string{},
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// CreateConversation inserts an active conversation between a and b
func CreateConversation(t *testing.T, db *gorm.DB, a, b uint) *model.Conversation {
	t.Helper()
	u1, u2 := model.OrderedPair(a, b)
	c := &model.Conversation{User1ID: u1, User2ID: u2, IsActive: true}
	require.NoError(t, db.Create(c).Error)
	return c
}

// CreateSubscription inserts an active subscription of plan for userID
func CreateSubscription(t *testing.T, db *gorm.DB, userID uint, plan string) *model.Subscription {
	t.Helper()
	now := time.Now()
	s := &model.Subscription{
		UserID:    userID,
		Plan:      plan,
		Status:    model.SubscriptionActive,
		StartsAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(30 * 24 * time.Hour),
	}
	require.NoError(t, db.Create(s).Error)
	return s
}
