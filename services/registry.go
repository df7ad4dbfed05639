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

// Reasons a poll job stops.
const (
	StopManual          = "manual"
	StopQuotaExceeded   = "quota_exceeded"
	StopFreeTierExpired = "free_tier_expired"
	StopTenantMissing   = "tenant_missing"
)

// CycleRunner runs one poll cycle for a tenant.
type CycleRunner interface {
	RunCycle(ctx context.Context, tenantID uint) CycleSummary
}

type RegistryConfig struct {
	DefaultInterval time.Duration
	FreeTierMaxRun  time.Duration
}

// Registry owns the repeating poll job of every tenant on the shared
// scheduler. At most one job exists per tenant and the job never runs
// two cycles at once.
type Registry struct {
	db     *gorm.DB
	sched  *scheduler.Scheduler
	runner CycleRunner
	cfg    RegistryConfig
	log    *logrus.Entry
}

func NewRegistry(db *gorm.DB, sched *scheduler.Scheduler, runner CycleRunner, cfg RegistryConfig, log *logrus.Entry) *Registry {
	if cfg.DefaultInterval <= 0 {
		cfg.DefaultInterval = time.Minute
	}
	if cfg.FreeTierMaxRun <= 0 {
		cfg.FreeTierMaxRun = 3 * time.Hour
	}
	return &Registry{db: db, sched: sched, runner: runner, cfg: cfg, log: log}
}

func pollJobKey(tenantID uint) string {
	return fmt.Sprintf("poll:%d", tenantID)
}

// Start schedules the tenant's poll job. It returns false without error
// when the tenant does not exist or already has a job.
func (r *Registry) Start(ctx context.Context, tenantID uint, interval time.Duration) (bool, error) {
	if interval <= 0 {
		interval = r.cfg.DefaultInterval
	}
	log := r.log.WithFields(logrus.Fields{"tenant_id": tenantID, "interval": interval.String()})

	var user models.User
	if err := r.db.WithContext(ctx).Select("id").First(&user, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("Start requested for unknown tenant")
			return false, nil
		}
		return false, err
	}

	added, err := r.sched.AddRepeating(pollJobKey(tenantID), interval, r.tick(tenantID))
	if err != nil {
		return false, err
	}
	if !added {
		log.Debug("Poll job already running")
		return false, nil
	}

	now := r.sched.Clock().Now().UTC()
	job := models.PollJob{
		UserID:          tenantID,
		IntervalSeconds: int(interval / time.Second),
		IsRunning:       true,
		StartedAt:       &now,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"interval_seconds": job.IntervalSeconds,
			"is_running":       true,
			"started_at":       now,
			"stopped_at":       nil,
			"stop_reason":      "",
			"updated_at":       now,
		}),
	}).Create(&job).Error
	if err != nil {
		r.sched.Remove(pollJobKey(tenantID))
		return false, fmt.Errorf("persist poll job: %w", err)
	}

	log.Info("Poll job started")
	return true, nil
}

// Stop removes the tenant's job and clears the persisted flag. Stopping
// a tenant without a job is a no-op.
func (r *Registry) Stop(ctx context.Context, tenantID uint, reason string) error {
	removed := r.sched.Remove(pollJobKey(tenantID))

	now := r.sched.Clock().Now().UTC()
	result := r.db.WithContext(ctx).Model(&models.PollJob{}).
		Where("user_id = ? AND is_running = ?", tenantID, true).
		Updates(map[string]interface{}{
			"is_running":  false,
			"stopped_at":  now,
			"stop_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("persist poll job stop: %w", result.Error)
	}

	if removed || result.RowsAffected > 0 {
		r.log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"reason":    reason,
		}).Info("Poll job stopped")
	}
	return nil
}

// IsRunning reports whether the tenant has a scheduled poll job.
func (r *Registry) IsRunning(tenantID uint) bool {
	return r.sched.Has(pollJobKey(tenantID))
}

// JobStatus describes a tenant's poll job.
type JobStatus struct {
	Running         bool       `json:"running"`
	IntervalSeconds int        `json:"interval_seconds"`
	StartedAt       *time.Time `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at"`
	StopReason      string     `json:"stop_reason,omitempty"`
	LastRunAt       *time.Time `json:"last_run_at"`
	NextRunAt       *time.Time `json:"next_run_at,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"` // free tier only
}

func (r *Registry) Status(ctx context.Context, tenantID uint) (*JobStatus, error) {
	db := r.db.WithContext(ctx)
	var user models.User
	if err := db.Select("id", "plan_name").First(&user, tenantID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}

	status := &JobStatus{Running: r.IsRunning(tenantID)}
	var job models.PollJob
	err := db.Where("user_id = ?", tenantID).First(&job).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		status.IntervalSeconds = job.IntervalSeconds
		status.StartedAt = job.StartedAt
		status.StoppedAt = job.StoppedAt
		status.StopReason = job.StopReason
		status.LastRunAt = job.LastRunAt
	}

	if status.Running {
		if next, ok := r.sched.NextRun(pollJobKey(tenantID)); ok {
			status.NextRunAt = &next
		}
		if !user.IsPro() && job.StartedAt != nil {
			expires := job.StartedAt.Add(r.cfg.FreeTierMaxRun)
			status.ExpiresAt = &expires
		}
	}
	return status, nil
}

// ExpireFreeTier stops every free-tier job that has run longer than the
// configured ceiling and returns how many it stopped.
func (r *Registry) ExpireFreeTier(ctx context.Context) (int, error) {
	cutoff := r.sched.Clock().Now().UTC().Add(-r.cfg.FreeTierMaxRun)

	var jobs []models.PollJob
	err := r.db.WithContext(ctx).
		Joins("JOIN users ON users.id = poll_jobs.user_id").
		Where("poll_jobs.is_running = ? AND users.plan_name <> ? AND poll_jobs.started_at <= ?", true, models.PlanPro, cutoff).
		Find(&jobs).Error
	if err != nil {
		return 0, fmt.Errorf("find expired free-tier jobs: %w", err)
	}

	stopped := 0
	for _, job := range jobs {
		if err := r.Stop(ctx, job.UserID, StopFreeTierExpired); err != nil {
			r.log.WithError(err).WithField("tenant_id", job.UserID).Error("Failed to expire free-tier job")
			continue
		}
		stopped++
	}
	return stopped, nil
}

// Restore re-registers jobs persisted as running, keeping their original
// start time so free-tier expiry still applies across restarts.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	var jobs []models.PollJob
	if err := r.db.WithContext(ctx).Where("is_running = ?", true).Find(&jobs).Error; err != nil {
		return 0, fmt.Errorf("load running poll jobs: %w", err)
	}

	restored := 0
	for _, job := range jobs {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", job.UserID).Count(&count).Error; err != nil {
			return restored, err
		}
		if count == 0 {
			_ = r.Stop(ctx, job.UserID, StopTenantMissing)
			continue
		}

		interval := job.Interval()
		if interval <= 0 {
			interval = r.cfg.DefaultInterval
		}
		added, err := r.sched.AddRepeating(pollJobKey(job.UserID), interval, r.tick(job.UserID))
		if err != nil {
			return restored, err
		}
		if added {
			restored++
		}
	}
	if restored > 0 {
		r.log.WithField("jobs", restored).Info("Restored poll jobs")
	}
	return restored, nil
}

func (r *Registry) tick(tenantID uint) scheduler.Job {
	return func(ctx context.Context) {
		summary := r.runner.RunCycle(ctx, tenantID)

		now := r.sched.Clock().Now().UTC()
		if err := r.db.WithContext(ctx).Model(&models.PollJob{}).
			Where("user_id = ?", tenantID).
			Update("last_run_at", now).Error; err != nil {
			r.log.WithError(err).WithField("tenant_id", tenantID).Warn("Failed to record poll run")
		}

		if summary.QuotaExceeded > 0 {
			if err := r.Stop(ctx, tenantID, StopQuotaExceeded); err != nil {
				r.log.WithError(err).WithField("tenant_id", tenantID).Error("Failed to stop quota-exhausted tenant")
			}
		}
	}
}
