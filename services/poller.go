package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"outreachly/mailbox"
	"outreachly/models"
	"outreachly/scheduler"
)

// MessageError records a message that did not triage cleanly.
type MessageError struct {
	MessageID string      `json:"message_id"`
	Kind      OutcomeKind `json:"kind"`
	Reason    string      `json:"reason"`
	Detail    string      `json:"detail,omitempty"`
}

// CycleSummary is the result of one poll cycle for one tenant.
type CycleSummary struct {
	TenantID      uint           `json:"tenant_id"`
	Fetched       int            `json:"fetched"`
	Junk          int            `json:"junk"`
	Easy          int            `json:"easy"`
	Hard          int            `json:"hard"`
	QuotaExceeded int            `json:"quota_exceeded"`
	Errors        int            `json:"errors"`
	MessageErrors []MessageError `json:"message_errors,omitempty"`
	Skipped       bool           `json:"skipped"` // another cycle held the tenant lock
	Err           error          `json:"-"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

func (s *CycleSummary) add(msgID string, o Outcome) {
	switch o.Kind {
	case OutcomeJunk:
		s.Junk++
	case OutcomeEasy:
		s.Easy++
	case OutcomeHard:
		s.Hard++
	case OutcomeQuotaExceeded:
		s.QuotaExceeded++
	default:
		s.Errors++
		s.MessageErrors = append(s.MessageErrors, MessageError{
			MessageID: msgID,
			Kind:      o.Kind,
			Reason:    o.Reason,
			Detail:    o.Detail,
		})
	}
}

type PollerConfig struct {
	MaxResults  int
	Concurrency int
	LockTTL     time.Duration
}

// Poller runs one poll cycle: fetch unseen mail through the cursor and
// triage it with bounded concurrency.
type Poller struct {
	db       *gorm.DB
	cursor   *Cursor
	pipeline *Pipeline
	locks    TenantLocker
	clock    scheduler.Clock
	cfg      PollerConfig
	log      *logrus.Entry
}

func NewPoller(db *gorm.DB, cursor *Cursor, pipeline *Pipeline, locks TenantLocker, clock scheduler.Clock, cfg PollerConfig, log *logrus.Entry) *Poller {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 20
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Poller{
		db:       db,
		cursor:   cursor,
		pipeline: pipeline,
		locks:    locks,
		clock:    clock,
		cfg:      cfg,
		log:      log,
	}
}

// RunCycle polls the tenant's active mailbox once. Per-message failures
// are collected in the summary; Err is set only when the cycle itself
// could not run.
func (p *Poller) RunCycle(ctx context.Context, tenantID uint) CycleSummary {
	summary := CycleSummary{TenantID: tenantID, StartedAt: p.clock.Now()}
	log := p.log.WithField("tenant_id", tenantID)
	defer func() { summary.FinishedAt = p.clock.Now() }()

	box, err := ActiveMailbox(ctx, p.db, tenantID)
	if err != nil {
		summary.Err = err
		if errors.Is(err, mailbox.ErrNoMailbox) {
			log.Warn("No active mailbox, nothing to poll")
		} else {
			log.WithError(err).Error("Failed to load mailbox")
		}
		return summary
	}

	release, acquired, err := p.locks.Acquire(ctx, tenantID, p.cfg.LockTTL)
	if err != nil {
		summary.Err = err
		log.WithError(err).Error("Failed to acquire tenant lock")
		return summary
	}
	if !acquired {
		summary.Skipped = true
		log.Debug("Poll cycle already running elsewhere, skipping")
		return summary
	}
	defer release()

	messages, err := p.cursor.FetchUnseen(ctx, box, p.cfg.MaxResults)
	if err != nil {
		summary.Err = err
		p.markPolled(ctx, box, err)
		log.WithError(err).Warn("Failed to fetch unseen messages")
		return summary
	}
	summary.Fetched = len(messages)

	// Quota is taken in fetch order so the boundary falls on the same
	// message whatever the fan-out.
	admitted := make([]bool, len(messages))
	for i := range messages {
		admitted[i] = p.pipeline.Admit(ctx, tenantID)
	}

	outcomes := make([]Outcome, len(messages))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, msg := range messages {
		i, msg := i, msg
		g.Go(func() error {
			outcomes[i] = p.pipeline.Triage(ctx, box, msg, admitted[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		summary.add(messages[i].ID, o)
	}
	p.markPolled(ctx, box, nil)

	if summary.Fetched > 0 {
		log.WithFields(logrus.Fields{
			"fetched":        summary.Fetched,
			"junk":           summary.Junk,
			"easy":           summary.Easy,
			"hard":           summary.Hard,
			"quota_exceeded": summary.QuotaExceeded,
			"errors":         summary.Errors,
		}).Info("Poll cycle finished")
	}
	return summary
}

func (p *Poller) markPolled(ctx context.Context, box *models.Mailbox, cycleErr error) {
	updates := map[string]interface{}{"last_polled_at": p.clock.Now().UTC()}
	if cycleErr != nil {
		updates["last_error"] = cycleErr.Error()
	} else {
		updates["last_error"] = nil
	}
	if err := p.db.WithContext(ctx).Model(&models.Mailbox{}).Where("id = ?", box.ID).Updates(updates).Error; err != nil {
		p.log.WithError(err).Warn("Failed to update mailbox poll status")
	}
}

// ActiveMailbox returns the tenant's first active mailbox.
func ActiveMailbox(ctx context.Context, db *gorm.DB, tenantID uint) (*models.Mailbox, error) {
	var box models.Mailbox
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", tenantID, true).
		Order("id").
		First(&box).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mailbox.ErrNoMailbox
	}
	if err != nil {
		return nil, fmt.Errorf("load mailbox: %w", err)
	}
	return &box, nil
}
