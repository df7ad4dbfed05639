package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreachly/mailbox"
	"outreachly/models"
	"outreachly/utils"
)

// MailboxInput carries the credentials a tenant connects. Empty
// passwords keep the stored ones.
type MailboxInput struct {
	Name           string
	FromEmail      string
	FromName       string
	IMAPHost       string
	IMAPPort       int
	IMAPUsername   string
	IMAPPassword   string
	IMAPEncryption string
	IMAPMailbox    string
	TrashMailbox   string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
}

// Mailboxes stores the mailbox the poller and sender use for a tenant.
type Mailboxes struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewMailboxes(db *gorm.DB, log *logrus.Entry) *Mailboxes {
	return &Mailboxes{db: db, log: log}
}

// Get returns the tenant's active mailbox with secrets cleared.
func (m *Mailboxes) Get(ctx context.Context, tenantID uint) (*models.Mailbox, error) {
	box, err := ActiveMailbox(ctx, m.db, tenantID)
	if err != nil {
		return nil, err
	}
	box.Sanitize()
	return box, nil
}

// Save creates or updates the tenant's active mailbox. Passwords are
// encrypted before they are written.
func (m *Mailboxes) Save(ctx context.Context, tenantID uint, in MailboxInput) (*models.Mailbox, error) {
	fromEmail, err := utils.NormalizeContactEmail(in.FromEmail)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	box, err := ActiveMailbox(ctx, m.db, tenantID)
	if errors.Is(err, mailbox.ErrNoMailbox) {
		box = &models.Mailbox{UserID: tenantID, IsActive: true}
	} else if err != nil {
		return nil, err
	}

	box.Name = in.Name
	if box.Name == "" {
		box.Name = "Primary"
	}
	box.FromEmail = fromEmail
	box.FromName = in.FromName
	box.IMAPHost = in.IMAPHost
	box.IMAPUsername = in.IMAPUsername
	box.SMTPHost = in.SMTPHost
	box.SMTPUsername = in.SMTPUsername
	if in.IMAPPort > 0 {
		box.IMAPPort = in.IMAPPort
	}
	if in.SMTPPort > 0 {
		box.SMTPPort = in.SMTPPort
	}
	if in.IMAPEncryption != "" {
		box.IMAPEncryption = in.IMAPEncryption
	}
	if in.IMAPMailbox != "" {
		box.IMAPMailbox = in.IMAPMailbox
	}
	if in.TrashMailbox != "" {
		box.TrashMailbox = in.TrashMailbox
	}

	if in.IMAPPassword != "" {
		if box.IMAPPassword, err = utils.Encrypt(in.IMAPPassword); err != nil {
			return nil, fmt.Errorf("encrypt imap password: %w", err)
		}
	}
	if in.SMTPPassword != "" {
		if box.SMTPPassword, err = utils.Encrypt(in.SMTPPassword); err != nil {
			return nil, fmt.Errorf("encrypt smtp password: %w", err)
		}
	}

	if err := m.db.WithContext(ctx).Save(box).Error; err != nil {
		return nil, err
	}
	m.log.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"mailbox_id": box.ID,
	}).Info("Mailbox saved")

	box.Sanitize()
	return box, nil
}
