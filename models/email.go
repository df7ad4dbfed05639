package models

import (
	"gorm.io/gorm"
)

// EmailLog statuses.
const (
	EmailLogJunk     = "junk"
	EmailLogEasy     = "easy"
	EmailLogSequence = "sequence"
)

// HardEmail statuses.
const (
	HardEmailHard      = "hard"
	HardEmailThrottled = "throttled"
	HardEmailReplied   = "replied"
)

// EmailLog records an automated action taken on mail: a trashed junk
// message, an auto-reply, or a delivered sequence step.
type EmailLog struct {
	gorm.Model
	UserID          uint   `gorm:"not null;index" json:"user_id"`
	Status          string `gorm:"not null;index" json:"status"` // junk, easy, sequence
	SourceMessageID string `gorm:"index" json:"source_message_id"`
	FromEmail       string `json:"from_email"`
	ToEmail         string `json:"to_email"`
	Subject         string `json:"subject"`
	Reply           string `gorm:"type:text" json:"reply"`
	MessageID       string `json:"message_id"` // outbound Message-Id
}

// HardEmail is an inbound message routed to manual review.
type HardEmail struct {
	gorm.Model
	UserID          uint   `gorm:"not null;index" json:"user_id"`
	SourceMessageID string `gorm:"not null;index" json:"source_message_id"`
	Sender          string `gorm:"not null" json:"sender"`
	Subject         string `json:"subject"`
	Snippet         string `gorm:"type:text" json:"snippet"`
	Status          string `gorm:"not null;default:'hard';index" json:"status"` // hard, throttled, replied
	Reason          string `json:"reason"`                                      // classified_hard, classification_failed, ...
	Reply           string `gorm:"type:text" json:"reply,omitempty"`
}
