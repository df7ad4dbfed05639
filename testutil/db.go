// Package testutil provides a real SQL store for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"outreachly/models"
)

var dbSeq atomic.Int64

// NewDB returns a migrated, seeded in-memory sqlite database private to t.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := models.CreateDefaultPlans(db); err != nil {
		t.Fatalf("seed plans: %v", err)
	}
	return db
}

// CreateUser inserts a tenant on the given plan.
func CreateUser(t testing.TB, db *gorm.DB, email, plan string) *models.User {
	t.Helper()
	user := &models.User{Email: email, PlanName: plan, IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateMailbox gives a tenant an active mailbox.
func CreateMailbox(t testing.TB, db *gorm.DB, userID uint) *models.Mailbox {
	t.Helper()
	box := &models.Mailbox{
		UserID:    userID,
		Name:      "Primary",
		FromEmail: fmt.Sprintf("owner%d@outreachly.test", userID),
		FromName:  "Owner",
		IMAPHost:  "imap.outreachly.test",
		IsActive:  true,
	}
	if err := db.Create(box).Error; err != nil {
		t.Fatalf("create mailbox: %v", err)
	}
	return box
}

// SetPlanLimit overrides one limit of a seeded plan. A nil limit makes
// the resource unlimited.
func SetPlanLimit(t testing.TB, db *gorm.DB, plan, column string, limit *int) {
	t.Helper()
	if err := db.Model(&models.Plan{}).Where("name = ?", plan).Update(column, limit).Error; err != nil {
		t.Fatalf("set plan limit: %v", err)
	}
}
