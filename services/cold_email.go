package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreachly/ai"
	"outreachly/models"
	"outreachly/utils"
)

// ColdEmailInput describes the person a first email is drafted for.
type ColdEmailInput struct {
	LinkedInURL string
	Role        string
	Website     string
	Tone        string
	About       string
}

// Draft is one generated email variation.
type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ColdEmails drafts first-touch outreach through the generator. Drafts
// are returned, never sent.
type ColdEmails struct {
	db              *gorm.DB
	generator       ai.Generator
	generateTimeout time.Duration
	log             *logrus.Entry
}

func NewColdEmails(db *gorm.DB, generator ai.Generator, generateTimeout time.Duration, log *logrus.Entry) *ColdEmails {
	if generateTimeout <= 0 {
		generateTimeout = 45 * time.Second
	}
	return &ColdEmails{db: db, generator: generator, generateTimeout: generateTimeout, log: log}
}

// Generate returns up to two drafts signed with the tenant's name.
func (c *ColdEmails) Generate(ctx context.Context, tenantID uint, in ColdEmailInput) ([]Draft, error) {
	var user models.User
	err := c.db.WithContext(ctx).First(&user, tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}

	tone := in.Tone
	if tone == "" {
		tone = "friendly"
	}

	generateCtx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()
	variations, err := c.generator.GenerateColdEmails(generateCtx, ai.ColdEmailRequest{
		RecipientName: utils.NameFromLinkedIn(in.LinkedInURL),
		LinkedInURL:   in.LinkedInURL,
		Role:          in.Role,
		Website:       in.Website,
		Tone:          tone,
		About:         in.About,
		SignOff:       user.DisplayName(),
	})
	if err != nil {
		c.log.WithError(err).WithField("tenant_id", tenantID).Warn("Cold email generation failed")
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	drafts := make([]Draft, 0, len(variations))
	for _, v := range variations {
		subject, body := utils.SplitSubject(v)
		if strings.TrimSpace(body) == "" {
			continue
		}
		drafts = append(drafts, Draft{Subject: subject, Body: body})
	}
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: no usable drafts", ErrGenerationFailed)
	}
	return drafts, nil
}
