package mailbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"outreachly/config"
	"outreachly/models"
	"outreachly/utils"
)

// SMTPSender delivers plain-text mail with gomail.
type SMTPSender struct {
	fallback config.SMTPConfig
	decrypt  func(string) (string, error)
	now      func() time.Time
}

func NewSMTPSender(fallback config.SMTPConfig, decrypt func(string) (string, error)) *SMTPSender {
	return &SMTPSender{fallback: fallback, decrypt: decrypt, now: time.Now}
}

type smtpSettings struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	fromName  string
}

func (s *SMTPSender) settings(box *models.Mailbox) (smtpSettings, error) {
	if box != nil && box.SMTPHost != "" {
		password, err := s.decrypt(box.SMTPPassword)
		if err != nil {
			return smtpSettings{}, fmt.Errorf("failed to decrypt SMTP password: %w", err)
		}
		return smtpSettings{
			host:      box.SMTPHost,
			port:      box.SMTPPort,
			username:  box.SMTPUsername,
			password:  password,
			fromEmail: box.FromEmail,
			fromName:  box.FromName,
		}, nil
	}

	if s.fallback.Host == "" || s.fallback.FromEmail == "" {
		return smtpSettings{}, ErrNoMailbox
	}
	cfg := smtpSettings{
		host:      s.fallback.Host,
		port:      s.fallback.Port,
		username:  s.fallback.Username,
		password:  s.fallback.Password,
		fromEmail: s.fallback.FromEmail,
		fromName:  s.fallback.FromName,
	}
	if box != nil && box.FromEmail != "" {
		cfg.fromName = box.FromName
	}
	return cfg, nil
}

// buildMessage assembles the outbound message and returns it with its Message-Id.
func (s *SMTPSender) buildMessage(cfg smtpSettings, out Outgoing) (*gomail.Message, string) {
	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), domainOf(cfg.fromEmail))

	m := gomail.NewMessage()
	m.SetAddressHeader("From", cfg.fromEmail, cfg.fromName)
	m.SetHeader("To", out.To)
	m.SetHeader("Subject", out.Subject)
	m.SetHeader("Message-Id", messageID)
	m.SetDateHeader("Date", s.now())
	if out.InReplyTo != "" {
		m.SetHeader("In-Reply-To", out.InReplyTo)
		m.SetHeader("References", out.InReplyTo)
	}
	m.SetBody("text/plain", out.Body)
	return m, messageID
}

func (s *SMTPSender) Send(ctx context.Context, box *models.Mailbox, out Outgoing) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if out.To == "" {
		return Receipt{}, fmt.Errorf("missing recipient")
	}

	cfg, err := s.settings(box)
	if err != nil {
		return Receipt{}, err
	}

	m, messageID := s.buildMessage(cfg, out)
	d := gomail.NewDialer(cfg.host, cfg.port, cfg.username, cfg.password)
	if err := d.DialAndSend(m); err != nil {
		return Receipt{}, fmt.Errorf("error sending email: %w", err)
	}

	return Receipt{MessageID: messageID, SentAt: s.now()}, nil
}

func domainOf(email string) string {
	if domain := utils.ExtractDomain(email); domain != "" {
		return domain
	}
	return "outreachly.local"
}
