package models

import (
	"time"

	"gorm.io/gorm"
)

// SequenceStep statuses. Sent and cancelled are terminal.
const (
	StepPending   = "pending"
	StepSent      = "sent"
	StepCancelled = "cancelled"
)

// SequenceStep is one message in a contact's follow-up sequence.
// Step 1 is delivered when the sequence is created.
type SequenceStep struct {
	gorm.Model
	UserID    uint `gorm:"not null;index" json:"user_id"`
	ContactID uint `gorm:"not null;uniqueIndex:idx_sequence_contact_step" json:"contact_id"`

	Step    int    `gorm:"not null;uniqueIndex:idx_sequence_contact_step" json:"step"`
	Subject string `json:"subject"`
	Body    string `gorm:"type:text;not null" json:"body"`

	Status      string     `gorm:"not null;default:'pending';index" json:"status"` // pending, sent, cancelled
	ScheduledAt *time.Time `json:"scheduled_at"`
	SentAt      *time.Time `json:"sent_at"`
}

// SequenceJob is the running flag for a contact's sequence.
type SequenceJob struct {
	gorm.Model
	UserID    uint `gorm:"not null;uniqueIndex:idx_sequence_job" json:"user_id"`
	ContactID uint `gorm:"not null;uniqueIndex:idx_sequence_job" json:"contact_id"`
	IsRunning bool `gorm:"default:false" json:"is_sequence_running"`
}
