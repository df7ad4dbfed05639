package models

import (
	"gorm.io/gorm"
)

// Contact statuses.
const (
	ContactPending     = "pending"
	ContactInSequence  = "inSequence"
	ContactReplied     = "replied"
	ContactInCompleted = "inCompleted"
)

// Contact is an outreach target owned by a tenant.
type Contact struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	Name        string `json:"name"`
	Email       string `gorm:"index" json:"email"`
	Role        string `json:"role"`
	Company     string `json:"company"`
	Website     string `json:"website"`
	LinkedInURL string `json:"linkedin_url"`
	Source      string `gorm:"default:'manual'" json:"source"`

	Status string `gorm:"not null;default:'pending'" json:"status"` // pending, inSequence, replied, inCompleted
}
