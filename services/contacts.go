package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreachly/models"
	"outreachly/utils"
)

type ContactInput struct {
	Name        string
	Email       string
	Role        string
	Company     string
	Website     string
	LinkedInURL string
	Source      string
}

// Contacts manages outreach targets. Every created contact counts
// against the tenant's contactsImported quota.
type Contacts struct {
	db     *gorm.DB
	ledger *Ledger
	log    *logrus.Entry
}

func NewContacts(db *gorm.DB, ledger *Ledger, log *logrus.Entry) *Contacts {
	return &Contacts{db: db, ledger: ledger, log: log}
}

func (c *Contacts) Create(ctx context.Context, tenantID uint, in ContactInput) (*models.Contact, error) {
	email, err := utils.NormalizeContactEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	if !c.ledger.TryConsume(ctx, tenantID, models.ResourceContactsImported, 1) {
		return nil, ErrQuotaExceeded
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "manual"
	}
	contact := &models.Contact{
		UserID:      tenantID,
		Name:        strings.TrimSpace(in.Name),
		Email:       email,
		Role:        in.Role,
		Company:     in.Company,
		Website:     in.Website,
		LinkedInURL: in.LinkedInURL,
		Source:      source,
		Status:      models.ContactPending,
	}
	if err := c.db.WithContext(ctx).Create(contact).Error; err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"contact_id": contact.ID,
	}).Info("Contact created")
	return contact, nil
}

func (c *Contacts) List(ctx context.Context, tenantID uint, status string) ([]models.Contact, error) {
	query := c.db.WithContext(ctx).Where("user_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var contacts []models.Contact
	err := query.Order("created_at DESC").Find(&contacts).Error
	return contacts, err
}

func (c *Contacts) Get(ctx context.Context, tenantID, id uint) (*models.Contact, error) {
	var contact models.Contact
	err := c.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, tenantID).First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// Delete soft-deletes the contact. Pending sequence steps stay pending
// and are skipped when they fire.
func (c *Contacts) Delete(ctx context.Context, tenantID, id uint) error {
	result := c.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, tenantID).Delete(&models.Contact{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrContactNotFound
	}
	return nil
}
