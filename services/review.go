package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreachly/ai"
	"outreachly/mailbox"
	"outreachly/models"
	"outreachly/utils"
)

// ReviewQueue holds the mail the engine would not answer on its own.
// Entries stay queued until a person replies; nothing re-classifies them.
type ReviewQueue struct {
	db              *gorm.DB
	provider        mailbox.Provider
	generator       ai.Generator
	generateTimeout time.Duration
	log             *logrus.Entry
}

func NewReviewQueue(db *gorm.DB, provider mailbox.Provider, generator ai.Generator, generateTimeout time.Duration, log *logrus.Entry) *ReviewQueue {
	if generateTimeout <= 0 {
		generateTimeout = 45 * time.Second
	}
	return &ReviewQueue{db: db, provider: provider, generator: generator, generateTimeout: generateTimeout, log: log}
}

// List returns the tenant's review entries, newest first. An empty
// status returns every entry that has not been replied to.
func (q *ReviewQueue) List(ctx context.Context, tenantID uint, status string) ([]models.HardEmail, error) {
	query := q.db.WithContext(ctx).Where("user_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	} else {
		query = query.Where("status <> ?", models.HardEmailReplied)
	}

	var emails []models.HardEmail
	if err := query.Order("created_at DESC").Find(&emails).Error; err != nil {
		return nil, err
	}
	return emails, nil
}

// Reply sends a human-written answer to a queued email and marks it
// replied. With polish set the draft is rewritten by the reply
// generator first; a generator failure sends nothing.
func (q *ReviewQueue) Reply(ctx context.Context, tenantID, id uint, body string, polish bool) (*models.HardEmail, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	db := q.db.WithContext(ctx)

	var email models.HardEmail
	err := db.Where("id = ? AND user_id = ?", id, tenantID).First(&email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHardEmailNotFound
	}
	if err != nil {
		return nil, err
	}
	if email.Status == models.HardEmailReplied {
		return nil, ErrAlreadyReplied
	}

	to, err := mailbox.ReplyAddress(email.Sender)
	if err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	box, err := ActiveMailbox(ctx, q.db, tenantID)
	if err != nil && !errors.Is(err, mailbox.ErrNoMailbox) {
		return nil, err
	}

	if polish {
		body, err = q.polish(ctx, tenantID, box, &email, body)
		if err != nil {
			return nil, err
		}
	}

	var inReplyTo string
	if box != nil {
		if original, err := q.provider.GetMessage(ctx, box, email.SourceMessageID); err == nil {
			inReplyTo = original.MessageID
		}
	}

	receipt, err := q.provider.Send(ctx, box, mailbox.Outgoing{
		To:        to,
		Subject:   utils.ReplySubject(email.Subject),
		Body:      body,
		InReplyTo: inReplyTo,
	})
	if err != nil {
		return nil, fmt.Errorf("send reply: %w", err)
	}

	result := db.Model(&models.HardEmail{}).
		Where("id = ? AND status <> ?", email.ID, models.HardEmailReplied).
		Updates(map[string]interface{}{"status": models.HardEmailReplied, "reply": body})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected != 1 {
		return nil, ErrAlreadyReplied
	}

	if err := db.Create(&models.EmailLog{
		UserID:          tenantID,
		Status:          models.EmailLogEasy,
		SourceMessageID: email.SourceMessageID,
		FromEmail:       email.Sender,
		ToEmail:         to,
		Subject:         utils.ReplySubject(email.Subject),
		Reply:           body,
		MessageID:       receipt.MessageID,
	}).Error; err != nil {
		q.log.WithError(err).Error("Failed to persist email log")
	}

	email.Status = models.HardEmailReplied
	email.Reply = body
	q.log.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"hard_email_id": id,
	}).Info("Manual reply sent")
	return &email, nil
}

func (q *ReviewQueue) polish(ctx context.Context, tenantID uint, box *models.Mailbox, email *models.HardEmail, draft string) (string, error) {
	var user models.User
	if err := q.db.WithContext(ctx).First(&user, tenantID).Error; err != nil {
		return "", fmt.Errorf("load tenant: %w", err)
	}
	signOff := user.DisplayName()
	if user.Name == nil && box != nil && box.FromName != "" {
		signOff = box.FromName
	}

	generateCtx, cancel := context.WithTimeout(ctx, q.generateTimeout)
	defer cancel()
	reply, err := q.generator.GenerateReply(generateCtx, ai.ReplyRequest{
		SenderName: senderName(email.Sender),
		Subject:    email.Subject,
		Body:       draft,
		SignOff:    signOff,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("%w: empty reply", ErrGenerationFailed)
	}
	return reply, nil
}
