package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	PlanFree = "free"
	PlanPro  = "pro"
)

// User is a tenant account. Every piece of engine state is scoped by its ID.
// Accounts are created at signup, outside this service.
type User struct {
	gorm.Model

	Email    string  `gorm:"uniqueIndex;not null" json:"email"`
	Name     *string `json:"name,omitempty"`
	IsActive bool    `gorm:"default:true" json:"is_active"`

	// Plan information
	PlanName     string     `gorm:"default:'free'" json:"plan_name"` // free, pro
	UsageResetAt *time.Time `json:"usage_reset_at"`                  // start of the current quota period

	// Relations
	Mailboxes []Mailbox `gorm:"foreignKey:UserID" json:"mailboxes,omitempty"`
}

// IsPro reports whether the tenant is on the paid tier.
func (u *User) IsPro() bool {
	return u.PlanName == PlanPro
}

// DisplayName is used to sign generated replies.
func (u *User) DisplayName() string {
	if u.Name != nil && strings.TrimSpace(*u.Name) != "" {
		return strings.TrimSpace(*u.Name)
	}
	if at := strings.Index(u.Email, "@"); at > 0 {
		return u.Email[:at]
	}
	return "Outreachly Assistant"
}
