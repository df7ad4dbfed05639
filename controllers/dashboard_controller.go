package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/services"
	"outreachly/utils"
)

// DashboardController serves quota usage and analytics counters.
type DashboardController struct {
	ledger    *services.Ledger
	analytics *services.Analytics
	logger    *logrus.Entry
}

func NewDashboardController(ledger *services.Ledger, analytics *services.Analytics, logger *logrus.Entry) *DashboardController {
	return &DashboardController{ledger: ledger, analytics: analytics, logger: logger}
}

func (dc *DashboardController) GetUsage(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	usage, err := dc.ledger.Usage(c.UserContext(), userID)
	if err != nil {
		return serviceError(c, dc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(usage))
}

func (dc *DashboardController) GetAnalytics(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	overview, err := dc.analytics.Overview(c.UserContext(), userID)
	if err != nil {
		return serviceError(c, dc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(overview))
}
