package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/services"
	"outreachly/utils"
)

type JobController struct {
	registry *services.Registry
	logger   *logrus.Entry
}

func NewJobController(registry *services.Registry, logger *logrus.Entry) *JobController {
	return &JobController{registry: registry, logger: logger}
}

type startJobRequest struct {
	IntervalMinutes int `json:"interval_minutes" validate:"omitempty,min=1,max=1440"`
}

// StartJob schedules the tenant's inbox poll job.
func (jc *JobController) StartJob(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req startJobRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, ErrInvalidRequestBody)
		}
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	started, err := jc.registry.Start(c.UserContext(), userID, time.Duration(req.IntervalMinutes)*time.Minute)
	if err != nil {
		return serviceError(c, jc.logger, err)
	}
	if !started {
		return utils.ErrorResponse(c, fiber.StatusConflict, "poll job is already running", nil)
	}

	utils.LogEvent("poll_job_started", map[string]interface{}{"user_id": userID})
	status, err := jc.registry.Status(c.UserContext(), userID)
	if err != nil {
		return serviceError(c, jc.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(status))
}

// StopJob removes the tenant's poll job. Stopping a stopped job succeeds.
func (jc *JobController) StopJob(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	if err := jc.registry.Stop(c.UserContext(), userID, services.StopManual); err != nil {
		return serviceError(c, jc.logger, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "poll job stopped",
	})
}

func (jc *JobController) JobStatus(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	status, err := jc.registry.Status(c.UserContext(), userID)
	if err != nil {
		return serviceError(c, jc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(status))
}
