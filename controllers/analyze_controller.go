package controller

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"outreachly/mailbox"
	"outreachly/services"
	"outreachly/utils"
)

// AnalyzeController triages a single message on demand, outside the
// tenant's poll schedule.
type AnalyzeController struct {
	db       *gorm.DB
	pipeline *services.Pipeline
	provider mailbox.Provider
	logger   *logrus.Entry
}

func NewAnalyzeController(db *gorm.DB, pipeline *services.Pipeline, provider mailbox.Provider, logger *logrus.Entry) *AnalyzeController {
	return &AnalyzeController{db: db, pipeline: pipeline, provider: provider, logger: logger}
}

type analyzeRequest struct {
	ID      string `json:"id" validate:"required"`
	Subject string `json:"subject"`
	Sender  string `json:"sender"`
	Snippet string `json:"snippet"`
}

// AnalyzeEmail runs the triage pipeline on one message. Subject and
// sender, when omitted, are read from the mailbox.
func (ac *AnalyzeController) AnalyzeEmail(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req analyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrInvalidRequestBody)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	box, err := services.ActiveMailbox(c.UserContext(), ac.db, userID)
	if err != nil {
		return serviceError(c, ac.logger, err)
	}

	msg := mailbox.Message{
		ID:      req.ID,
		Subject: req.Subject,
		Sender:  req.Sender,
		Snippet: req.Snippet,
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Sender) == "" {
		msg, err = ac.provider.GetMessage(c.UserContext(), box, req.ID)
		if err != nil {
			return serviceError(c, ac.logger, err)
		}
	}

	outcome := ac.pipeline.Process(c.UserContext(), box, msg)
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"id":      msg.ID,
		"outcome": outcome,
	}))
}
