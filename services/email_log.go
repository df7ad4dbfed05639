package services

import (
	"context"

	"gorm.io/gorm"

	"outreachly/models"
)

const maxEmailLogPage = 100

// EmailLogQuery filters the sent-mail log. Page starts at 1.
type EmailLogQuery struct {
	Status string
	Page   int
	Limit  int
}

// EmailLogs reads the record of mail the engine trashed or sent.
type EmailLogs struct {
	db *gorm.DB
}

func NewEmailLogs(db *gorm.DB) *EmailLogs {
	return &EmailLogs{db: db}
}

// List returns one page of the tenant's log, newest first, and the
// total number of matching rows.
func (l *EmailLogs) List(ctx context.Context, tenantID uint, q EmailLogQuery) ([]models.EmailLog, int64, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > maxEmailLogPage {
		q.Limit = 20
	}

	query := l.db.WithContext(ctx).Model(&models.EmailLog{}).Where("user_id = ?", tenantID)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	logs := []models.EmailLog{}
	err := query.Order("created_at DESC").Order("id DESC").
		Offset((q.Page - 1) * q.Limit).Limit(q.Limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
