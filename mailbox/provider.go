// Package mailbox talks to a tenant's mail account: IMAP for reading and
// housekeeping the inbox, SMTP for sending replies and sequence steps.
package mailbox

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"outreachly/models"
)

var (
	ErrNoMailbox       = errors.New("no active mailbox configured")
	ErrMessageNotFound = errors.New("message not found")
)

// Message is one inbound email. ID is stable for the lifetime of the
// mailbox; Ordinal increases with arrival order (the IMAP UID).
type Message struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"` // RFC 5322 Message-Id, used for threading
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	Snippet   string `json:"snippet"`
	Body      string `json:"-"`
	Ordinal   uint32 `json:"ordinal"`
}

// Text returns the body used for classification.
func (m Message) Text() string {
	if strings.TrimSpace(m.Body) != "" {
		return m.Body
	}
	return m.Snippet
}

// Outgoing is a message to deliver.
type Outgoing struct {
	To        string
	Subject   string
	Body      string
	InReplyTo string
}

// Receipt identifies a delivered message.
type Receipt struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

// Provider is the mail account collaborator.
type Provider interface {
	ListUnseen(ctx context.Context, box *models.Mailbox, max int) ([]Message, error)
	GetMessage(ctx context.Context, box *models.Mailbox, id string) (Message, error)
	Send(ctx context.Context, box *models.Mailbox, out Outgoing) (Receipt, error)
	Trash(ctx context.Context, box *models.Mailbox, id string) error
	MarkRead(ctx context.Context, box *models.Mailbox, id string) error
}

// ReplyAddress extracts the bare address from a From header value such
// as "Jane Doe <jane@acme.com>".
func ReplyAddress(sender string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(sender))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}

const snippetLen = 200

func snippet(body string) string {
	text := []rune(strings.Join(strings.Fields(body), " "))
	if len(text) > snippetLen {
		text = text[:snippetLen]
	}
	return string(text)
}
