package models

import (
	"time"

	"gorm.io/gorm"
)

// Metered resources.
const (
	ResourceEmailAnalyses    = "emailAnalyses"
	ResourceAutoReplies      = "autoReplies"
	ResourceSequencesCreated = "sequencesCreated"
	ResourceContactsImported = "contactsImported"
)

// Resources lists every metered resource kind.
var Resources = []string{
	ResourceEmailAnalyses,
	ResourceAutoReplies,
	ResourceSequencesCreated,
	ResourceContactsImported,
}

// UsageCounter tracks consumption of one resource in one quota period.
// Used never exceeds the plan limit: increments are conditional updates.
type UsageCounter struct {
	gorm.Model
	UserID      uint      `gorm:"not null;uniqueIndex:idx_usage_user_resource" json:"user_id"`
	Resource    string    `gorm:"not null;uniqueIndex:idx_usage_user_resource" json:"resource"`
	PeriodStart time.Time `gorm:"not null" json:"period_start"`
	Used        int       `gorm:"not null;default:0" json:"used"`
}
