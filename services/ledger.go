package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outreachly/models"
	"outreachly/scheduler"
)

// Ledger meters monthly resource usage per tenant. All increments are
// single conditional UPDATEs so concurrent consumers never overshoot a
// plan limit.
type Ledger struct {
	db    *gorm.DB
	clock scheduler.Clock
	log   *logrus.Entry
}

func NewLedger(db *gorm.DB, clock scheduler.Clock, log *logrus.Entry) *Ledger {
	return &Ledger{db: db, clock: clock, log: log}
}

// PeriodStart returns the first instant of t's UTC calendar month.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// TryConsume adds amount to the tenant's counter for resource and
// reports whether it fit under the plan limit. Unknown tenants and store
// failures return false.
func (l *Ledger) TryConsume(ctx context.Context, tenantID uint, resource string, amount int) bool {
	log := l.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"resource":  resource,
		"amount":    amount,
	})
	if amount <= 0 {
		log.Warn("Rejecting non-positive usage amount")
		return false
	}

	db := l.db.WithContext(ctx)
	user, err := l.loadTenant(db, tenantID)
	if err != nil {
		if !errors.Is(err, ErrTenantNotFound) {
			log.WithError(err).Error("Failed to load tenant for usage check")
		}
		return false
	}

	start := PeriodStart(l.clock.Now())
	if err := l.rollover(db, tenantID, start); err != nil {
		log.WithError(err).Error("Failed to roll usage period")
		return false
	}
	if err := l.ensureCounter(db, tenantID, resource, start); err != nil {
		log.WithError(err).Error("Failed to create usage counter")
		return false
	}

	limit, err := l.limitFor(db, user.PlanName, resource)
	if err != nil {
		log.WithError(err).Error("Failed to resolve plan limit")
		return false
	}

	query := db.Model(&models.UsageCounter{}).
		Where("user_id = ? AND resource = ?", tenantID, resource)
	if limit != nil {
		query = query.Where("used + ? <= ?", amount, *limit)
	}
	result := query.Update("used", gorm.Expr("used + ?", amount))
	if result.Error != nil {
		log.WithError(result.Error).Error("Failed to increment usage")
		return false
	}
	return result.RowsAffected == 1
}

func (l *Ledger) loadTenant(db *gorm.DB, tenantID uint) (*models.User, error) {
	var user models.User
	if err := db.Select("id", "plan_name").First(&user, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &user, nil
}

// rollover zeroes every counter of the tenant that belongs to an earlier
// period. The WHERE on period_start makes it safe to race.
func (l *Ledger) rollover(db *gorm.DB, tenantID uint, start time.Time) error {
	result := db.Model(&models.UsageCounter{}).
		Where("user_id = ? AND period_start < ?", tenantID, start).
		Updates(map[string]interface{}{
			"used":         0,
			"period_start": start,
		})
	if result.Error != nil {
		return result.Error
	}

	if err := db.Model(&models.User{}).
		Where("id = ? AND (usage_reset_at IS NULL OR usage_reset_at < ?)", tenantID, start).
		Update("usage_reset_at", start).Error; err != nil {
		return err
	}

	if result.RowsAffected > 0 {
		l.log.WithFields(logrus.Fields{
			"tenant_id":    tenantID,
			"period_start": start,
			"counters":     result.RowsAffected,
		}).Info("Usage period rolled over")
	}
	return nil
}

func (l *Ledger) ensureCounter(db *gorm.DB, tenantID uint, resource string, start time.Time) error {
	counter := models.UsageCounter{
		UserID:      tenantID,
		Resource:    resource,
		PeriodStart: start,
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error
}

func (l *Ledger) limitFor(db *gorm.DB, planName, resource string) (*int, error) {
	plan, err := loadPlan(db, planName)
	if err != nil {
		return nil, err
	}
	return plan.Limit(resource), nil
}

// loadPlan falls back to the free tier when the tenant's plan is unknown.
func loadPlan(db *gorm.DB, planName string) (*models.Plan, error) {
	var plan models.Plan
	err := db.Where("name = ?", planName).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) && planName != models.PlanFree {
		err = db.Where("name = ?", models.PlanFree).First(&plan).Error
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %q: %w", planName, err)
	}
	return &plan, nil
}

// UsageItem is one resource in a usage snapshot. Limit and Remaining
// are nil when the resource is unlimited.
type UsageItem struct {
	Resource  string `json:"resource"`
	Used      int    `json:"used"`
	Limit     *int   `json:"limit"`
	Remaining *int   `json:"remaining"`
}

type UsageSnapshot struct {
	Plan        string      `json:"plan"`
	PeriodStart time.Time   `json:"period_start"`
	ResetsAt    time.Time   `json:"resets_at"`
	Items       []UsageItem `json:"items"`
}

// Usage reports current-period consumption without modifying anything.
// Counters left over from an earlier period read as zero.
func (l *Ledger) Usage(ctx context.Context, tenantID uint) (*UsageSnapshot, error) {
	db := l.db.WithContext(ctx)
	var user models.User
	if err := db.First(&user, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	plan, err := loadPlan(db, user.PlanName)
	if err != nil {
		return nil, err
	}

	var counters []models.UsageCounter
	if err := db.Where("user_id = ?", tenantID).Find(&counters).Error; err != nil {
		return nil, err
	}

	start := PeriodStart(l.clock.Now())
	used := make(map[string]int, len(counters))
	for _, c := range counters {
		if !c.PeriodStart.Before(start) {
			used[c.Resource] = c.Used
		}
	}

	snapshot := &UsageSnapshot{
		Plan:        plan.Name,
		PeriodStart: start,
		ResetsAt:    start.AddDate(0, 1, 0),
	}
	for _, resource := range models.Resources {
		item := UsageItem{Resource: resource, Used: used[resource], Limit: plan.Limit(resource)}
		if item.Limit != nil {
			remaining := *item.Limit - item.Used
			if remaining < 0 {
				remaining = 0
			}
			item.Remaining = &remaining
		}
		snapshot.Items = append(snapshot.Items, item)
	}
	return snapshot, nil
}
