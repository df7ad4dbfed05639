package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/services"
	"outreachly/utils"
)

type EmailController struct {
	logs       *services.EmailLogs
	coldEmails *services.ColdEmails
	logger     *logrus.Entry
}

func NewEmailController(logs *services.EmailLogs, coldEmails *services.ColdEmails, logger *logrus.Entry) *EmailController {
	return &EmailController{logs: logs, coldEmails: coldEmails, logger: logger}
}

type listEmailsQuery struct {
	Status string `query:"status" validate:"omitempty,oneof=junk easy sequence"`
	Page   int    `query:"page" validate:"omitempty,min=1"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=100"`
}

// ListEmails pages through the log of mail the engine trashed or sent.
func (ec *EmailController) ListEmails(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var query listEmailsQuery
	if err := c.QueryParser(&query); err != nil {
		return badRequest(c, "invalid query parameters")
	}
	if err := utils.ValidateStruct(query); err != nil {
		return badRequest(c, err.Error())
	}
	if query.Page == 0 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = 20
	}

	logs, total, err := ec.logs.List(c.UserContext(), userID, services.EmailLogQuery{
		Status: query.Status,
		Page:   query.Page,
		Limit:  query.Limit,
	})
	if err != nil {
		return serviceError(c, ec.logger, err)
	}
	return c.JSON(utils.PaginatedResponse{
		Data:  logs,
		Total: total,
		Page:  query.Page,
		Limit: query.Limit,
	})
}

type generateEmailRequest struct {
	LinkedInURL string `json:"linkedin_url" validate:"required,url"`
	Role        string `json:"role" validate:"required,min=2"`
	Website     string `json:"website" validate:"omitempty,url"`
	Tone        string `json:"tone" validate:"omitempty,oneof=friendly formal funny"`
	About       string `json:"about" validate:"max=2000"`
}

// GenerateEmail drafts two cold email variations. Nothing is sent.
func (ec *EmailController) GenerateEmail(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req generateEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrInvalidRequestBody)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	drafts, err := ec.coldEmails.Generate(c.UserContext(), userID, services.ColdEmailInput{
		LinkedInURL: req.LinkedInURL,
		Role:        req.Role,
		Website:     req.Website,
		Tone:        req.Tone,
		About:       req.About,
	})
	if err != nil {
		return serviceError(c, ec.logger, err)
	}
	return c.JSON(utils.SuccessResponse(drafts))
}
