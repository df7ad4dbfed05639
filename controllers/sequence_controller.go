package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/services"
	"outreachly/utils"
)

type SequenceController struct {
	engine *services.SequenceEngine
	logger *logrus.Entry
}

func NewSequenceController(engine *services.SequenceEngine, logger *logrus.Entry) *SequenceController {
	return &SequenceController{engine: engine, logger: logger}
}

type createSequenceRequest struct {
	ContactID  uint     `json:"contact_id" validate:"required"`
	Subject    string   `json:"subject" validate:"max=255"`
	FirstBody  string   `json:"first_body" validate:"required"`
	DayOffsets []int    `json:"day_offsets" validate:"max=10,dive,min=1,max=365"`
	FollowUps  []string `json:"follow_ups" validate:"max=10"`
}

func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req createSequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrInvalidRequestBody)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	steps, err := sc.engine.CreateSequence(c.UserContext(), services.SequenceRequest{
		TenantID:     userID,
		ContactID:    req.ContactID,
		FirstSubject: req.Subject,
		FirstBody:    req.FirstBody,
		DayOffsets:   req.DayOffsets,
		FollowUps:    req.FollowUps,
	})
	if err != nil {
		return serviceError(c, sc.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(steps))
}

func (sc *SequenceController) CancelSequence(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	contactID := utils.ParseUint(c.Params("contactId"))
	if contactID == 0 {
		return badRequest(c, ErrInvalidContactID)
	}

	cancelled, err := sc.engine.CancelSequence(c.UserContext(), userID, contactID)
	if err != nil {
		return serviceError(c, sc.logger, err)
	}
	return c.JSON(fiber.Map{
		"success":         true,
		"cancelled_steps": cancelled,
	})
}

func (sc *SequenceController) SequenceStatus(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	contactID := utils.ParseUint(c.Params("contactId"))
	if contactID == 0 {
		return badRequest(c, ErrInvalidContactID)
	}

	running, err := sc.engine.IsRunning(c.UserContext(), userID, contactID)
	if err != nil {
		return serviceError(c, sc.logger, err)
	}
	return c.JSON(fiber.Map{
		"contact_id":          contactID,
		"is_sequence_running": running,
	})
}

func (sc *SequenceController) SequenceSteps(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	contactID := utils.ParseUint(c.Params("contactId"))
	if contactID == 0 {
		return badRequest(c, ErrInvalidContactID)
	}

	steps, err := sc.engine.Steps(c.UserContext(), userID, contactID)
	if err != nil {
		return serviceError(c, sc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(steps))
}
