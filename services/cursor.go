package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"outreachly/mailbox"
	"outreachly/models"
)

// Cursor hands out only messages a tenant has not processed yet. It
// keeps a watermark on the provider ordinal plus a bounded list of
// recently seen ids for providers that deliver out of order.
//
// UIDVALIDITY resets on the IMAP side are not detected; a reset mailbox
// whose new UIDs are below the watermark is ignored until they pass it.
type Cursor struct {
	db        *gorm.DB
	provider  mailbox.Provider
	retention int
	log       *logrus.Entry
}

func NewCursor(db *gorm.DB, provider mailbox.Provider, retention int, log *logrus.Entry) *Cursor {
	if retention <= 0 {
		retention = 500
	}
	return &Cursor{db: db, provider: provider, retention: retention, log: log}
}

// FetchUnseen lists up to max messages from the provider and returns the
// ones above the watermark and not already seen, in provider order. The
// cursor is written only when something new turned up.
func (c *Cursor) FetchUnseen(ctx context.Context, box *models.Mailbox, max int) ([]mailbox.Message, error) {
	tenantID := box.UserID
	listed, err := c.provider.ListUnseen(ctx, box, max)
	if err != nil {
		return nil, fmt.Errorf("list unseen: %w", err)
	}
	if len(listed) == 0 {
		return nil, nil
	}

	state, err := c.Load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(state.SeenIDs)+len(listed))
	for _, id := range state.SeenIDs {
		seen[id] = struct{}{}
	}

	var fresh []mailbox.Message
	var freshIDs []string
	watermark := state.Watermark
	for _, msg := range listed {
		if msg.ID == "" {
			c.log.WithField("tenant_id", tenantID).Warn("Skipping message without id")
			continue
		}
		if _, dup := seen[msg.ID]; dup || msg.Ordinal <= state.Watermark {
			continue
		}
		seen[msg.ID] = struct{}{}
		fresh = append(fresh, msg)
		freshIDs = append(freshIDs, msg.ID)
		if msg.Ordinal > watermark {
			watermark = msg.Ordinal
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	ids := append(append([]string{}, state.SeenIDs...), freshIDs...)
	if len(ids) > c.retention {
		ids = ids[len(ids)-c.retention:]
	}
	if err := c.save(ctx, tenantID, watermark, ids); err != nil {
		return nil, err
	}

	c.log.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"fresh":     len(fresh),
		"listed":    len(listed),
		"watermark": watermark,
	}).Debug("Inbox cursor advanced")
	return fresh, nil
}

// Load returns the tenant's cursor, or a zero cursor if none is stored.
func (c *Cursor) Load(ctx context.Context, tenantID uint) (*models.InboxCursor, error) {
	var state models.InboxCursor
	err := c.db.WithContext(ctx).Where("user_id = ?", tenantID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.InboxCursor{UserID: tenantID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load inbox cursor: %w", err)
	}
	return &state, nil
}

// save never moves the watermark backwards: the update only matches
// while the stored watermark is at or below the new one.
func (c *Cursor) save(ctx context.Context, tenantID uint, watermark uint32, ids []string) error {
	db := c.db.WithContext(ctx)

	created := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.InboxCursor{
		UserID:    tenantID,
		Watermark: watermark,
		SeenIDs:   datatypes.JSONSlice[string](ids),
	})
	if created.Error != nil {
		return fmt.Errorf("create inbox cursor: %w", created.Error)
	}
	if created.RowsAffected == 1 {
		return nil
	}

	result := db.Model(&models.InboxCursor{}).
		Where("user_id = ? AND watermark <= ?", tenantID, watermark).
		Updates(map[string]interface{}{
			"watermark": watermark,
			"seen_ids":  datatypes.JSONSlice[string](ids),
		})
	if result.Error != nil {
		return fmt.Errorf("update inbox cursor: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		c.log.WithFields(logrus.Fields{
			"tenant_id": tenantID,
			"watermark": watermark,
		}).Warn("Inbox cursor already past this watermark, keeping stored value")
	}
	return nil
}
