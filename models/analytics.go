package models

import (
	"time"

	"gorm.io/gorm"
)

// AnalyticsOverview holds per-tenant counters shown on the dashboard.
type AnalyticsOverview struct {
	gorm.Model
	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`

	// Inbox triage
	TotalProcessed int `gorm:"default:0" json:"total_processed"`
	AutoReplied    int `gorm:"default:0" json:"auto_replied"`
	Hard           int `gorm:"default:0" json:"hard"`
	Spam           int `gorm:"default:0" json:"spam"`
	Throttled      int `gorm:"default:0" json:"throttled"`

	// Sequences
	StepsPlanned       int `gorm:"default:0" json:"steps_planned"`
	StepsCompleted     int `gorm:"default:0" json:"steps_completed"`
	SequenceEmailsSent int `gorm:"default:0" json:"sequence_emails_sent"`

	LastUpdated time.Time `json:"last_updated"`
}
