package models

import (
	"time"

	"gorm.io/gorm"
)

// Mailbox holds the inbox and outbound credentials polled for a tenant.
type Mailbox struct {
	gorm.Model
	UserID uint `gorm:"not null;index" json:"user_id"`

	// Basic identification
	Name      string `gorm:"not null" json:"name"`
	FromEmail string `gorm:"not null" json:"from_email"`
	FromName  string `gorm:"not null" json:"from_name"`

	// ========= IMAP Configuration =========
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port" gorm:"default:993"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"-"` // Encrypted in application layer
	IMAPEncryption string `json:"imap_encryption" gorm:"default:'SSL'"`
	IMAPMailbox    string `json:"imap_mailbox" gorm:"default:'INBOX'"`
	TrashMailbox   string `json:"trash_mailbox" gorm:"default:'Trash'"`

	// ========= SMTP Configuration =========
	SMTPHost     string `json:"smtp_host"`
	SMTPPort     int    `json:"smtp_port" gorm:"default:587"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"-"` // Encrypted in application layer

	// ========= Status =========
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	LastPolledAt *time.Time `json:"last_polled_at"`
	LastError    *string    `json:"last_error"`
}

// Sanitize clears secrets before a mailbox is serialised.
func (m *Mailbox) Sanitize() {
	m.IMAPPassword = ""
	m.SMTPPassword = ""
}
