package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/services"
	"outreachly/utils"
)

type HardEmailController struct {
	reviews *services.ReviewQueue
	logger  *logrus.Entry
}

func NewHardEmailController(reviews *services.ReviewQueue, logger *logrus.Entry) *HardEmailController {
	return &HardEmailController{reviews: reviews, logger: logger}
}

type listHardEmailsQuery struct {
	Status string `validate:"omitempty,oneof=hard throttled replied"`
}

func (hc *HardEmailController) ListHardEmails(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	query := listHardEmailsQuery{Status: c.Query("status")}
	if err := utils.ValidateStruct(query); err != nil {
		return badRequest(c, err.Error())
	}

	emails, err := hc.reviews.List(c.UserContext(), userID, query.Status)
	if err != nil {
		return serviceError(c, hc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(emails))
}

type replyHardEmailRequest struct {
	Body   string `json:"body" validate:"required"`
	Polish bool   `json:"polish"`
}

func (hc *HardEmailController) ReplyHardEmail(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return badRequest(c, ErrInvalidID)
	}

	var req replyHardEmailRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrInvalidRequestBody)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	email, err := hc.reviews.Reply(c.UserContext(), userID, id, req.Body, req.Polish)
	if err != nil {
		return serviceError(c, hc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(email))
}
