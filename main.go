package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/ai"
	"outreachly/config"
	"outreachly/mailbox"
	"outreachly/middleware"
	"outreachly/routes"
	"outreachly/scheduler"
	"outreachly/services"
	"outreachly/utils"
	"outreachly/worker"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logger := utils.NewLogger("main")

	if err := config.LoadConfig(); err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	cfg := config.AppConfig

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		}); err != nil {
			logger.WithError(err).Warn("Sentry init failed")
		}
		defer sentry.Flush(2 * time.Second)
	}

	if err := config.ConnectDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	db := config.DB

	var (
		locks          services.TenantLocker = services.NewLocalLocker()
		limiterStorage fiber.Storage
	)
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Redis unreachable, using in-process locks")
		} else {
			locks = services.NewRedisLocker(client, utils.NewLogger("locks"))
			limiterStorage = middleware.NewRedisStorage(client)
			defer client.Close()
		}
	}

	sched := scheduler.New(scheduler.Real(), utils.NewLogger("scheduler"))
	clock := sched.Clock()

	aiService := ai.NewService(cfg.AI, utils.NewLogger("ai"))
	provider := mailbox.NewClient(cfg.SMTP, utils.NewLogger("mailbox"))

	ledger := services.NewLedger(db, clock, utils.NewLogger("ledger"))
	analytics := services.NewAnalytics(db, clock, utils.NewLogger("analytics"))
	cursor := services.NewCursor(db, provider, cfg.Poll.SeenIDRetention, utils.NewLogger("cursor"))
	pipeline := services.NewPipeline(db, ledger, provider, aiService, aiService, analytics, services.PipelineConfig{
		ClassifyTimeout: cfg.AI.ClassifyTimeout,
		GenerateTimeout: cfg.AI.GenerateTimeout,
	}, utils.NewLogger("triage"))
	poller := services.NewPoller(db, cursor, pipeline, locks, clock, services.PollerConfig{
		MaxResults:  cfg.Poll.MaxResults,
		Concurrency: cfg.Poll.Concurrency,
		LockTTL:     cfg.Poll.LockTTL,
	}, utils.NewLogger("poller"))
	registry := services.NewRegistry(db, sched, poller, services.RegistryConfig{
		DefaultInterval: cfg.Poll.DefaultInterval,
		FreeTierMaxRun:  cfg.Poll.FreeTierMaxRun,
	}, utils.NewLogger("registry"))
	engine := services.NewSequenceEngine(db, sched, provider, aiService, ledger, analytics, cfg.AI.GenerateTimeout, utils.NewLogger("sequences"))
	pipeline.SetReplyObserver(engine)
	reviews := services.NewReviewQueue(db, provider, aiService, cfg.AI.GenerateTimeout, utils.NewLogger("reviews"))
	contacts := services.NewContacts(db, ledger, utils.NewLogger("contacts"))
	coldEmails := services.NewColdEmails(db, aiService, cfg.AI.GenerateTimeout, utils.NewLogger("cold_emails"))
	mailboxes := services.NewMailboxes(db, utils.NewLogger("mailboxes"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.RestoreAll(ctx, utils.NewLogger("restore"), map[string]worker.Restorer{
		"poll":     registry,
		"sequence": engine,
	}, "poll", "sequence")

	expiryWorker := worker.NewExpiryWorker(registry, cfg.Poll.ExpiryCheckInterval, utils.NewLogger("expiry"))
	go expiryWorker.Start(ctx)

	app := fiber.New()
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.CORSOrigins
	app.Use(middleware.CORS(corsConfig))

	routes.SetupRoutes(app, routes.Dependencies{
		DB:             db,
		Scheduler:      sched,
		Provider:       provider,
		Ledger:         ledger,
		Analytics:      analytics,
		Pipeline:       pipeline,
		Registry:       registry,
		Engine:         engine,
		Reviews:        reviews,
		Contacts:       contacts,
		EmailLogs:      services.NewEmailLogs(db),
		ColdEmails:     coldEmails,
		Mailboxes:      mailboxes,
		JobStartLimit:  cfg.RateLimitJobStart,
		LimiterStorage: limiterStorage,
		Logger:         utils.NewLogger("http"),
	})

	go func() {
		logger.WithField("port", cfg.ServerPort).Info("Server starting")
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.WithError(err).Error("HTTP shutdown failed")
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := sched.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Scheduler shutdown timed out")
	}
}
