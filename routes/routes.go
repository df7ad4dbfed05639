package routes

import (
	controller "outreachly/controllers"
	"outreachly/mailbox"
	"outreachly/middleware"
	"outreachly/scheduler"
	"outreachly/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Dependencies are the engine components the HTTP surface drives.
type Dependencies struct {
	DB         *gorm.DB
	Scheduler  *scheduler.Scheduler
	Provider   mailbox.Provider
	Ledger     *services.Ledger
	Analytics  *services.Analytics
	Pipeline   *services.Pipeline
	Registry   *services.Registry
	Engine     *services.SequenceEngine
	Reviews    *services.ReviewQueue
	Contacts   *services.Contacts
	EmailLogs  *services.EmailLogs
	ColdEmails *services.ColdEmails
	Mailboxes  *services.Mailboxes

	JobStartLimit  int
	LimiterStorage fiber.Storage
	Logger         *logrus.Entry
}

func SetupRoutes(app *fiber.App, deps Dependencies) {
	log := deps.Logger

	health := controller.NewHealthController(deps.DB, deps.Scheduler)
	app.Get("/health", health.Health)

	api := app.Group("/api/v1", middleware.Protected(deps.DB), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	jobController := controller.NewJobController(deps.Registry, log.WithField("controller", "jobs"))
	jobs := api.Group("/jobs")
	jobs.Post("/start", middleware.JobStartLimiter(deps.JobStartLimit, deps.LimiterStorage), jobController.StartJob)
	jobs.Post("/stop", jobController.StopJob)
	jobs.Get("/status", jobController.JobStatus)

	sequenceController := controller.NewSequenceController(deps.Engine, log.WithField("controller", "sequences"))
	sequences := api.Group("/sequences")
	sequences.Post("/", sequenceController.CreateSequence)
	sequences.Post("/:contactId/cancel", sequenceController.CancelSequence)
	sequences.Get("/:contactId/status", sequenceController.SequenceStatus)
	sequences.Get("/:contactId/steps", sequenceController.SequenceSteps)

	hardEmailController := controller.NewHardEmailController(deps.Reviews, log.WithField("controller", "hard_emails"))
	hardEmails := api.Group("/hard-emails")
	hardEmails.Get("/", hardEmailController.ListHardEmails)
	hardEmails.Post("/:id/reply", hardEmailController.ReplyHardEmail)

	contactController := controller.NewContactController(deps.Contacts, log.WithField("controller", "contacts"))
	contacts := api.Group("/contacts")
	contacts.Get("/", contactController.ListContacts)
	contacts.Post("/", contactController.CreateContact)
	contacts.Delete("/:id", contactController.DeleteContact)

	dashboardController := controller.NewDashboardController(deps.Ledger, deps.Analytics, log.WithField("controller", "dashboard"))
	api.Get("/usage", dashboardController.GetUsage)
	api.Get("/analytics", dashboardController.GetAnalytics)

	emailController := controller.NewEmailController(deps.EmailLogs, deps.ColdEmails, log.WithField("controller", "emails"))
	api.Get("/emails", emailController.ListEmails)
	api.Post("/generate-email", emailController.GenerateEmail)

	mailboxController := controller.NewMailboxController(deps.Mailboxes, log.WithField("controller", "mailbox"))
	api.Get("/mailbox", mailboxController.GetMailbox)
	api.Put("/mailbox", mailboxController.SaveMailbox)

	analyzeController := controller.NewAnalyzeController(deps.DB, deps.Pipeline, deps.Provider, log.WithField("controller", "analyze"))
	api.Post("/analyze", analyzeController.AnalyzeEmail)
}
