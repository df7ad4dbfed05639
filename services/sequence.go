package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outreachly/ai"
	"outreachly/mailbox"
	"outreachly/models"
	"outreachly/scheduler"
	"outreachly/utils"
)

const (
	defaultSequenceSubject = "Quick question"
	day                    = 24 * time.Hour
)

// SequenceRequest starts a follow-up sequence. FirstBody is sent at once
// as step 1; step i+2 is sent DayOffsets[i] days later. FollowUps, when
// given, supplies one body per offset; otherwise bodies are generated.
// Any body may start with a "Subject:" line.
type SequenceRequest struct {
	TenantID     uint
	ContactID    uint
	FirstSubject string
	FirstBody    string
	DayOffsets   []int
	FollowUps    []string
}

// SequenceEngine sends step 1 of a sequence synchronously and schedules
// the remaining steps as one-shot jobs keyed seq:<contact>:<step>.
type SequenceEngine struct {
	db              *gorm.DB
	sched           *scheduler.Scheduler
	provider        mailbox.Provider
	generator       ai.Generator
	ledger          *Ledger
	analytics       *Analytics
	generateTimeout time.Duration
	log             *logrus.Entry
}

func NewSequenceEngine(db *gorm.DB, sched *scheduler.Scheduler, provider mailbox.Provider, generator ai.Generator, ledger *Ledger, analytics *Analytics, generateTimeout time.Duration, log *logrus.Entry) *SequenceEngine {
	if generateTimeout <= 0 {
		generateTimeout = 45 * time.Second
	}
	return &SequenceEngine{
		db:              db,
		sched:           sched,
		provider:        provider,
		generator:       generator,
		ledger:          ledger,
		analytics:       analytics,
		generateTimeout: generateTimeout,
		log:             log,
	}
}

func stepJobKey(contactID uint, step int) string {
	return fmt.Sprintf("seq:%d:%d", contactID, step)
}

func stepJobPrefix(contactID uint) string {
	return fmt.Sprintf("seq:%d:", contactID)
}

type plannedStep struct {
	subject string
	body    string
}

// CreateSequence sends the first message, persists the follow-ups as
// pending steps and schedules them. It returns every step, step 1 first.
func (e *SequenceEngine) CreateSequence(ctx context.Context, req SequenceRequest) ([]models.SequenceStep, error) {
	log := e.log.WithFields(logrus.Fields{
		"tenant_id":  req.TenantID,
		"contact_id": req.ContactID,
	})

	for _, offset := range req.DayOffsets {
		if offset <= 0 {
			return nil, ErrInvalidOffsets
		}
	}
	if len(req.FollowUps) > 0 && len(req.FollowUps) != len(req.DayOffsets) {
		return nil, ErrFollowUpCount
	}
	if strings.TrimSpace(req.FirstBody) == "" {
		return nil, ErrEmptyBody
	}

	db := e.db.WithContext(ctx)
	contact, err := e.loadContact(db, req.TenantID, req.ContactID)
	if err != nil {
		return nil, err
	}
	to, err := contactAddress(contact)
	if err != nil {
		return nil, err
	}

	box, err := ActiveMailbox(ctx, e.db, req.TenantID)
	if err != nil && !errors.Is(err, mailbox.ErrNoMailbox) {
		return nil, err
	}

	first := e.firstStep(req)
	followUps, err := e.followUps(ctx, req, contact, first)
	if err != nil {
		return nil, err
	}

	if err := e.claim(db, req.TenantID, req.ContactID); err != nil {
		return nil, err
	}
	released := false
	release := func() {
		if !released {
			released = true
			e.setRunning(context.Background(), req.TenantID, req.ContactID, false)
		}
	}

	if !e.ledger.TryConsume(ctx, req.TenantID, models.ResourceSequencesCreated, 1) {
		release()
		log.Info("Sequence quota exhausted")
		return nil, ErrQuotaExceeded
	}

	receipt, err := e.provider.Send(ctx, box, mailbox.Outgoing{To: to, Subject: first.subject, Body: first.body})
	if err != nil {
		release()
		utils.LogError("sequence_first_send_failed", err, map[string]interface{}{
			"tenant_id":  req.TenantID,
			"contact_id": req.ContactID,
		})
		return nil, fmt.Errorf("send first message: %w", err)
	}

	now := e.sched.Clock().Now().UTC()
	sentAt := receipt.SentAt.UTC()
	if receipt.SentAt.IsZero() {
		sentAt = now
	}
	steps := make([]models.SequenceStep, 0, len(followUps)+1)
	steps = append(steps, models.SequenceStep{
		UserID:      req.TenantID,
		ContactID:   req.ContactID,
		Step:        1,
		Subject:     first.subject,
		Body:        first.body,
		Status:      models.StepSent,
		ScheduledAt: &now,
		SentAt:      &sentAt,
	})
	for i, planned := range followUps {
		at := now.Add(time.Duration(req.DayOffsets[i]) * day)
		steps = append(steps, models.SequenceStep{
			UserID:      req.TenantID,
			ContactID:   req.ContactID,
			Step:        i + 2,
			Subject:     planned.subject,
			Body:        planned.body,
			Status:      models.StepPending,
			ScheduledAt: &at,
		})
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		// Steps of an earlier, finished sequence share the (contact, step) key.
		if err := tx.Unscoped().Where("contact_id = ?", req.ContactID).Delete(&models.SequenceStep{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&steps).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Contact{}).Where("id = ?", req.ContactID).
			Update("status", models.ContactInSequence).Error; err != nil {
			return err
		}
		return tx.Create(&models.EmailLog{
			UserID:    req.TenantID,
			Status:    models.EmailLogSequence,
			ToEmail:   to,
			Subject:   first.subject,
			Reply:     first.body,
			MessageID: receipt.MessageID,
		}).Error
	})
	if err != nil {
		release()
		utils.LogError("sequence_persist_failed", err, map[string]interface{}{
			"tenant_id":  req.TenantID,
			"contact_id": req.ContactID,
		})
		return nil, fmt.Errorf("persist sequence: %w", err)
	}

	for _, step := range steps[1:] {
		if _, err := e.sched.AddOnce(stepJobKey(step.ContactID, step.Step), *step.ScheduledAt, e.stepJob(step.UserID, step.ContactID, step.Step)); err != nil {
			log.WithError(err).WithField("step", step.Step).Error("Failed to schedule sequence step")
		}
	}

	e.analytics.Record(ctx, req.TenantID, AnalyticsDelta{
		StepsPlanned:       len(followUps),
		SequenceEmailsSent: 1,
	})
	if len(followUps) == 0 {
		e.completeIfDone(ctx, req.TenantID, req.ContactID)
	}

	log.WithField("follow_ups", len(followUps)).Info("Sequence started")
	return steps, nil
}

func (e *SequenceEngine) firstStep(req SequenceRequest) plannedStep {
	subject, body := utils.SplitSubject(req.FirstBody)
	if s := strings.TrimSpace(req.FirstSubject); s != "" {
		subject = s
	}
	if subject == "" {
		subject = defaultSequenceSubject
	}
	return plannedStep{subject: subject, body: body}
}

func (e *SequenceEngine) followUps(ctx context.Context, req SequenceRequest, contact *models.Contact, first plannedStep) ([]plannedStep, error) {
	if len(req.DayOffsets) == 0 {
		return nil, nil
	}

	bodies := req.FollowUps
	if len(bodies) == 0 {
		generateCtx, cancel := context.WithTimeout(ctx, e.generateTimeout)
		generated, err := e.generator.GenerateFollowUps(generateCtx, ai.FollowUpRequest{
			ContactName:  contact.Name,
			Company:      contact.Company,
			Role:         contact.Role,
			FirstMessage: first.body,
			Count:        len(req.DayOffsets),
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("generate follow-ups: %w", err)
		}
		if len(generated) != len(req.DayOffsets) {
			return nil, fmt.Errorf("generate follow-ups: %w: got %d bodies, want %d", ai.ErrNonConforming, len(generated), len(req.DayOffsets))
		}
		bodies = generated
	}

	planned := make([]plannedStep, len(bodies))
	for i, text := range bodies {
		subject, body := utils.SplitSubject(text)
		if subject == "" {
			subject = utils.ReplySubject(first.subject)
		}
		if body == "" {
			return nil, ErrEmptyBody
		}
		planned[i] = plannedStep{subject: subject, body: body}
	}
	return planned, nil
}

func (e *SequenceEngine) loadContact(db *gorm.DB, tenantID, contactID uint) (*models.Contact, error) {
	var contact models.Contact
	err := db.Where("id = ? AND user_id = ?", contactID, tenantID).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load contact: %w", err)
	}
	return &contact, nil
}

func contactAddress(contact *models.Contact) (string, error) {
	if strings.TrimSpace(contact.Email) == "" {
		return "", ErrContactEmailMissing
	}
	email, err := utils.NormalizeContactEmail(contact.Email)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return email, nil
}

// claim flips the contact's running flag from false to true. It fails
// with ErrSequenceRunning when the flag is already set.
func (e *SequenceEngine) claim(db *gorm.DB, tenantID, contactID uint) error {
	err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SequenceJob{UserID: tenantID, ContactID: contactID}).Error
	if err != nil {
		return fmt.Errorf("ensure sequence flag: %w", err)
	}
	result := db.Model(&models.SequenceJob{}).
		Where("user_id = ? AND contact_id = ? AND is_running = ?", tenantID, contactID, false).
		Update("is_running", true)
	if result.Error != nil {
		return fmt.Errorf("claim sequence flag: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return ErrSequenceRunning
	}
	return nil
}

func (e *SequenceEngine) setRunning(ctx context.Context, tenantID, contactID uint, running bool) {
	err := e.db.WithContext(ctx).Model(&models.SequenceJob{}).
		Where("user_id = ? AND contact_id = ?", tenantID, contactID).
		Update("is_running", running).Error
	if err != nil {
		e.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id":  tenantID,
			"contact_id": contactID,
		}).Error("Failed to update sequence flag")
	}
}

func (e *SequenceEngine) stepJob(tenantID, contactID uint, step int) scheduler.Job {
	return func(ctx context.Context) {
		e.deliver(ctx, tenantID, contactID, step)
	}
}

// deliver sends one scheduled step. A step that is no longer pending, or
// whose contact was deleted or lost its address, is left untouched.
func (e *SequenceEngine) deliver(ctx context.Context, tenantID, contactID uint, stepIndex int) {
	log := e.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"contact_id": contactID,
		"step":       stepIndex,
	})
	db := e.db.WithContext(ctx)

	var step models.SequenceStep
	err := db.Where("user_id = ? AND contact_id = ? AND step = ?", tenantID, contactID, stepIndex).First(&step).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithError(err).Error("Failed to load sequence step")
		}
		return
	}
	if step.Status != models.StepPending {
		log.WithField("status", step.Status).Debug("Step no longer pending")
		return
	}

	contact, err := e.loadContact(db, tenantID, contactID)
	if err != nil {
		log.WithError(err).Warn("Contact unavailable, step left pending")
		return
	}
	to, err := contactAddress(contact)
	if err != nil {
		log.WithError(err).Warn("Contact address unusable, step left pending")
		return
	}

	box, err := ActiveMailbox(ctx, e.db, tenantID)
	if err != nil && !errors.Is(err, mailbox.ErrNoMailbox) {
		log.WithError(err).Error("Failed to load mailbox, step left pending")
		return
	}

	receipt, err := e.provider.Send(ctx, box, mailbox.Outgoing{To: to, Subject: step.Subject, Body: step.Body})
	if err != nil {
		utils.LogError("sequence_step_send_failed", err, map[string]interface{}{
			"tenant_id":  tenantID,
			"contact_id": contactID,
			"step":       stepIndex,
		})
		return
	}

	sentAt := receipt.SentAt.UTC()
	if receipt.SentAt.IsZero() {
		sentAt = e.sched.Clock().Now().UTC()
	}
	result := db.Model(&models.SequenceStep{}).
		Where("id = ? AND status = ?", step.ID, models.StepPending).
		Updates(map[string]interface{}{"status": models.StepSent, "sent_at": sentAt})
	if result.Error != nil {
		log.WithError(result.Error).Error("Step sent but status not recorded")
		return
	}
	if result.RowsAffected != 1 {
		log.Warn("Step cancelled while sending, keeping cancelled status")
		return
	}

	if err := db.Create(&models.EmailLog{
		UserID:    tenantID,
		Status:    models.EmailLogSequence,
		ToEmail:   to,
		Subject:   step.Subject,
		Reply:     step.Body,
		MessageID: receipt.MessageID,
	}).Error; err != nil {
		log.WithError(err).Error("Failed to persist email log")
	}
	e.analytics.Record(ctx, tenantID, AnalyticsDelta{StepsCompleted: 1, SequenceEmailsSent: 1})
	log.Info("Sequence step sent")

	e.completeIfDone(ctx, tenantID, contactID)
}

// completeIfDone clears the running flag and completes the contact once
// no pending step remains.
func (e *SequenceEngine) completeIfDone(ctx context.Context, tenantID, contactID uint) {
	db := e.db.WithContext(ctx)
	var pending int64
	err := db.Model(&models.SequenceStep{}).
		Where("user_id = ? AND contact_id = ? AND status = ?", tenantID, contactID, models.StepPending).
		Count(&pending).Error
	if err != nil || pending > 0 {
		return
	}

	e.setRunning(ctx, tenantID, contactID, false)
	err = db.Model(&models.Contact{}).
		Where("id = ? AND status = ?", contactID, models.ContactInSequence).
		Update("status", models.ContactInCompleted).Error
	if err != nil {
		e.log.WithError(err).WithField("contact_id", contactID).Error("Failed to complete contact")
		return
	}
	e.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"contact_id": contactID,
	}).Info("Sequence completed")
}

// CancelSequence removes every scheduled step of the contact, marks the
// still-pending ones cancelled and returns their step numbers. Steps
// already sent are unaffected. Cancelling twice is a no-op.
func (e *SequenceEngine) CancelSequence(ctx context.Context, tenantID, contactID uint) ([]int, error) {
	var contact models.Contact
	err := e.db.WithContext(ctx).Unscoped().
		Where("id = ? AND user_id = ?", contactID, tenantID).
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load contact: %w", err)
	}
	return e.cancel(ctx, tenantID, contactID, models.ContactInCompleted)
}

func (e *SequenceEngine) cancel(ctx context.Context, tenantID, contactID uint, contactStatus string) ([]int, error) {
	log := e.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"contact_id": contactID,
	})
	for _, key := range e.sched.JobsWithPrefix(stepJobPrefix(contactID)) {
		e.sched.Remove(key)
	}

	db := e.db.WithContext(ctx)
	var pending []models.SequenceStep
	err := db.Where("user_id = ? AND contact_id = ? AND status = ?", tenantID, contactID, models.StepPending).
		Order("step").Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("load pending steps: %w", err)
	}

	cancelled := []int{}
	for _, step := range pending {
		result := db.Model(&models.SequenceStep{}).
			Where("id = ? AND status = ?", step.ID, models.StepPending).
			Update("status", models.StepCancelled)
		if result.Error != nil {
			return cancelled, fmt.Errorf("cancel step %d: %w", step.Step, result.Error)
		}
		if result.RowsAffected == 1 {
			cancelled = append(cancelled, step.Step)
		}
	}

	e.setRunning(ctx, tenantID, contactID, false)
	if err := db.Unscoped().Model(&models.Contact{}).
		Where("id = ? AND user_id = ?", contactID, tenantID).
		Update("status", contactStatus).Error; err != nil {
		return cancelled, fmt.Errorf("update contact status: %w", err)
	}

	if len(cancelled) > 0 {
		log.WithField("steps", cancelled).Info("Sequence cancelled")
	}
	return cancelled, nil
}

// ContactReplied stops the running sequences of contacts with the given
// address and marks them replied.
func (e *SequenceEngine) ContactReplied(ctx context.Context, tenantID uint, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, nil
	}

	var contacts []models.Contact
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(email) = ? AND status = ?", tenantID, email, models.ContactInSequence).
		Find(&contacts).Error
	if err != nil {
		return false, err
	}
	for _, contact := range contacts {
		if _, err := e.cancel(ctx, tenantID, contact.ID, models.ContactReplied); err != nil {
			return false, err
		}
	}
	return len(contacts) > 0, nil
}

// Restore schedules every pending step. Steps already due fire at once.
func (e *SequenceEngine) Restore(ctx context.Context) (int, error) {
	var steps []models.SequenceStep
	if err := e.db.WithContext(ctx).Where("status = ?", models.StepPending).Order("scheduled_at").Find(&steps).Error; err != nil {
		return 0, fmt.Errorf("load pending steps: %w", err)
	}

	restored := 0
	for _, step := range steps {
		runAt := e.sched.Clock().Now()
		if step.ScheduledAt != nil {
			runAt = *step.ScheduledAt
		}
		added, err := e.sched.AddOnce(stepJobKey(step.ContactID, step.Step), runAt, e.stepJob(step.UserID, step.ContactID, step.Step))
		if err != nil {
			return restored, err
		}
		if added {
			restored++
		}
	}
	if restored > 0 {
		e.log.WithField("steps", restored).Info("Restored sequence steps")
	}
	return restored, nil
}

func (e *SequenceEngine) IsRunning(ctx context.Context, tenantID, contactID uint) (bool, error) {
	var job models.SequenceJob
	err := e.db.WithContext(ctx).Where("user_id = ? AND contact_id = ?", tenantID, contactID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return job.IsRunning, nil
}

func (e *SequenceEngine) Steps(ctx context.Context, tenantID, contactID uint) ([]models.SequenceStep, error) {
	var steps []models.SequenceStep
	err := e.db.WithContext(ctx).
		Where("user_id = ? AND contact_id = ?", tenantID, contactID).
		Order("step").Find(&steps).Error
	return steps, err
}
