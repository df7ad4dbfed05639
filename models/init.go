package models

import "gorm.io/gorm"

// All returns every model the engine migrates.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Plan{},
		&UsageCounter{},
		&Mailbox{},
		&InboxCursor{},
		&PollJob{},
		&EmailLog{},
		&HardEmail{},
		&Contact{},
		&SequenceStep{},
		&SequenceJob{},
		&AnalyticsOverview{},
	}
}

func intPtr(v int) *int { return &v }

// CreateDefaultPlans seeds the free and pro tiers if they are missing.
func CreateDefaultPlans(db *gorm.DB) error {
	defaultPlans := []Plan{
		{
			Name:                  PlanFree,
			Description:           "Free tier with limited monthly analyses",
			EmailAnalysesPerMonth: intPtr(100),
			AutoRepliesPerMonth:   intPtr(30),
			SequencesPerMonth:     intPtr(1),
			ContactsPerMonth:      intPtr(50),
		},
		{
			Name:                  PlanPro,
			Description:           "Pro tier",
			EmailAnalysesPerMonth: intPtr(500),
			AutoRepliesPerMonth:   intPtr(200),
			SequencesPerMonth:     intPtr(5),
			ContactsPerMonth:      intPtr(200),
		},
	}
	for _, plan := range defaultPlans {
		if err := db.FirstOrCreate(&plan, "name = ?", plan.Name).Error; err != nil {
			return err
		}
	}
	return nil
}
