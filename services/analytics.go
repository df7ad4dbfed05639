package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outreachly/models"
	"outreachly/scheduler"
)

// AnalyticsDelta is a set of counter increments for one tenant.
type AnalyticsDelta struct {
	TotalProcessed     int
	AutoReplied        int
	Hard               int
	Spam               int
	Throttled          int
	StepsPlanned       int
	StepsCompleted     int
	SequenceEmailsSent int
}

func (d AnalyticsDelta) columns() map[string]int {
	return map[string]int{
		"total_processed":      d.TotalProcessed,
		"auto_replied":         d.AutoReplied,
		"hard":                 d.Hard,
		"spam":                 d.Spam,
		"throttled":            d.Throttled,
		"steps_planned":        d.StepsPlanned,
		"steps_completed":      d.StepsCompleted,
		"sequence_emails_sent": d.SequenceEmailsSent,
	}
}

type Analytics struct {
	db    *gorm.DB
	clock scheduler.Clock
	log   *logrus.Entry
}

func NewAnalytics(db *gorm.DB, clock scheduler.Clock, log *logrus.Entry) *Analytics {
	return &Analytics{db: db, clock: clock, log: log}
}

// Record applies d with in-place increments. Failures are logged, never
// returned: counters must not fail the operation they describe.
func (a *Analytics) Record(ctx context.Context, tenantID uint, d AnalyticsDelta) {
	updates := map[string]interface{}{}
	for column, n := range d.columns() {
		if n != 0 {
			updates[column] = gorm.Expr(column+" + ?", n)
		}
	}
	if len(updates) == 0 {
		return
	}
	updates["last_updated"] = a.clock.Now().UTC()

	db := a.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.AnalyticsOverview{UserID: tenantID, LastUpdated: a.clock.Now().UTC()}).Error
	if err == nil {
		err = db.Model(&models.AnalyticsOverview{}).Where("user_id = ?", tenantID).Updates(updates).Error
	}
	if err != nil {
		a.log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"error":     err,
		}).Error("Failed to record analytics")
	}
}

// Overview is the dashboard view of a tenant.
type Overview struct {
	models.AnalyticsOverview
	PendingReview   int64 `json:"pending_review"`
	ThrottledReview int64 `json:"throttled_review"`
	ActiveSequences int64 `json:"active_sequences"`
	PendingSteps    int64 `json:"pending_steps"`
}

func (a *Analytics) Overview(ctx context.Context, tenantID uint) (*Overview, error) {
	db := a.db.WithContext(ctx)
	out := &Overview{}

	err := db.Where("user_id = ?", tenantID).First(&out.AnalyticsOverview).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		out.AnalyticsOverview = models.AnalyticsOverview{UserID: tenantID}
	} else if err != nil {
		return nil, err
	}

	counts := []struct {
		dst   *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&out.PendingReview, &models.HardEmail{}, "user_id = ? AND status = ?", []interface{}{tenantID, models.HardEmailHard}},
		{&out.ThrottledReview, &models.HardEmail{}, "user_id = ? AND status = ?", []interface{}{tenantID, models.HardEmailThrottled}},
		{&out.ActiveSequences, &models.SequenceJob{}, "user_id = ? AND is_running = ?", []interface{}{tenantID, true}},
		{&out.PendingSteps, &models.SequenceStep{}, "user_id = ? AND status = ?", []interface{}{tenantID, models.StepPending}},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Where(c.where, c.args...).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}
	return out, nil
}
