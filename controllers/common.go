package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/mailbox"
	"outreachly/services"
	"outreachly/utils"
)

const (
	ErrInvalidRequestBody = "invalid request body"
	ErrInvalidContactID   = "invalid contact ID"
	ErrInvalidID          = "invalid ID"
)

func currentUserID(c *fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("userID").(uint)
	return userID, ok && userID != 0
}

func unauthorized(c *fiber.Ctx) error {
	return utils.ErrorResponse(c, fiber.StatusUnauthorized, "invalid user ID", nil)
}

func badRequest(c *fiber.Ctx, message string) error {
	return utils.ErrorResponse(c, fiber.StatusBadRequest, message, nil)
}

// serviceError maps engine errors onto HTTP statuses. Unknown errors
// are logged and reported as 500 without detail.
func serviceError(c *fiber.Ctx, logger *logrus.Entry, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrContactNotFound),
		errors.Is(err, services.ErrHardEmailNotFound),
		errors.Is(err, services.ErrTenantNotFound),
		errors.Is(err, mailbox.ErrMessageNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, services.ErrSequenceRunning),
		errors.Is(err, services.ErrAlreadyReplied):
		status = fiber.StatusConflict
	case errors.Is(err, services.ErrQuotaExceeded):
		status = fiber.StatusPaymentRequired
	case errors.Is(err, services.ErrGenerationFailed):
		status = fiber.StatusBadGateway
	case errors.Is(err, services.ErrInvalidOffsets),
		errors.Is(err, services.ErrFollowUpCount),
		errors.Is(err, services.ErrEmptyBody),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrContactEmailMissing),
		errors.Is(err, mailbox.ErrNoMailbox):
		status = fiber.StatusBadRequest
	}

	if status == fiber.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.Path()).Error("Request failed")
		return utils.ErrorResponse(c, status, "internal server error", nil)
	}
	return utils.ErrorResponse(c, status, err.Error(), nil)
}
