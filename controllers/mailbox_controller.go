package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/services"
	"outreachly/utils"
)

type MailboxController struct {
	mailboxes *services.Mailboxes
	logger    *logrus.Entry
}

func NewMailboxController(mailboxes *services.Mailboxes, logger *logrus.Entry) *MailboxController {
	return &MailboxController{mailboxes: mailboxes, logger: logger}
}

type saveMailboxRequest struct {
	Name           string `json:"name" validate:"max=100"`
	FromEmail      string `json:"from_email" validate:"required,email"`
	FromName       string `json:"from_name" validate:"required,max=100"`
	IMAPHost       string `json:"imap_host" validate:"required,hostname"`
	IMAPPort       int    `json:"imap_port" validate:"omitempty,min=1,max=65535"`
	IMAPUsername   string `json:"imap_username" validate:"required"`
	IMAPPassword   string `json:"imap_password"`
	IMAPEncryption string `json:"imap_encryption" validate:"omitempty,oneof=SSL TLS STARTTLS NONE"`
	IMAPMailbox    string `json:"imap_mailbox"`
	TrashMailbox   string `json:"trash_mailbox"`
	SMTPHost       string `json:"smtp_host" validate:"omitempty,hostname"`
	SMTPPort       int    `json:"smtp_port" validate:"omitempty,min=1,max=65535"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"smtp_password"`
}

func (mc *MailboxController) GetMailbox(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	box, err := mc.mailboxes.Get(c.UserContext(), userID)
	if err != nil {
		return serviceError(c, mc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(box))
}

// SaveMailbox connects or updates the mailbox polled for the tenant.
func (mc *MailboxController) SaveMailbox(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req saveMailboxRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrInvalidRequestBody)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	box, err := mc.mailboxes.Save(c.UserContext(), userID, services.MailboxInput{
		Name:           req.Name,
		FromEmail:      req.FromEmail,
		FromName:       req.FromName,
		IMAPHost:       req.IMAPHost,
		IMAPPort:       req.IMAPPort,
		IMAPUsername:   req.IMAPUsername,
		IMAPPassword:   req.IMAPPassword,
		IMAPEncryption: req.IMAPEncryption,
		IMAPMailbox:    req.IMAPMailbox,
		TrashMailbox:   req.TrashMailbox,
		SMTPHost:       req.SMTPHost,
		SMTPPort:       req.SMTPPort,
		SMTPUsername:   req.SMTPUsername,
		SMTPPassword:   req.SMTPPassword,
	})
	if err != nil {
		return serviceError(c, mc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(box))
}
