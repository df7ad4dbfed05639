package models

import "gorm.io/gorm"

// Plan holds the monthly limits for a tier. A nil limit means unlimited.
type Plan struct {
	gorm.Model
	Name        string `gorm:"not null;uniqueIndex" json:"name"` // free, pro
	Description string `json:"description"`

	EmailAnalysesPerMonth *int `json:"email_analyses_per_month"`
	AutoRepliesPerMonth   *int `json:"auto_replies_per_month"`
	SequencesPerMonth     *int `json:"sequences_per_month"`
	ContactsPerMonth      *int `json:"contacts_per_month"`
}

// Limit returns the configured ceiling for a resource, or nil when the
// resource is unlimited on this plan.
func (p *Plan) Limit(resource string) *int {
	switch resource {
	case ResourceEmailAnalyses:
		return p.EmailAnalysesPerMonth
	case ResourceAutoReplies:
		return p.AutoRepliesPerMonth
	case ResourceSequencesCreated:
		return p.SequencesPerMonth
	case ResourceContactsImported:
		return p.ContactsPerMonth
	default:
		return nil
	}
}
