package controller

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"outreachly/scheduler"
)

const version = "1.0.0"

type HealthController struct {
	db    *gorm.DB
	sched *scheduler.Scheduler
}

func NewHealthController(db *gorm.DB, sched *scheduler.Scheduler) *HealthController {
	return &HealthController{db: db, sched: sched}
}

func (hc *HealthController) Health(c *fiber.Ctx) error {
	database := "ok"
	status := fiber.StatusOK
	if sqlDB, err := hc.db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
		database = "unreachable"
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status":         "running",
		"version":        version,
		"database":       database,
		"scheduled_jobs": hc.sched.Len(),
	})
}
