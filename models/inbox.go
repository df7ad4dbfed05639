package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InboxCursor remembers how far a tenant's inbox has been processed.
// Watermark is the highest message ordinal (IMAP UID) seen so far and
// never decreases. SeenIDs is a bounded list of recent message ids,
// newest last, guarding against out-of-order delivery.
type InboxCursor struct {
	gorm.Model
	UserID    uint                        `gorm:"not null;uniqueIndex" json:"user_id"`
	Watermark uint32                      `gorm:"not null;default:0" json:"watermark"`
	SeenIDs   datatypes.JSONSlice[string] `json:"seen_ids"`
}

// PollJob is the persisted running flag of a tenant's repeating poll job.
type PollJob struct {
	gorm.Model
	UserID          uint       `gorm:"not null;uniqueIndex" json:"user_id"`
	IntervalSeconds int        `gorm:"not null" json:"interval_seconds"`
	IsRunning       bool       `gorm:"default:false" json:"is_running"`
	StartedAt       *time.Time `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at"`
	StopReason      string     `json:"stop_reason"` // manual, quota_exceeded, free_tier_expired
	LastRunAt       *time.Time `json:"last_run_at"`
}

// Interval returns the polling period.
func (p *PollJob) Interval() time.Duration {
	return time.Duration(p.IntervalSeconds) * time.Second
}
