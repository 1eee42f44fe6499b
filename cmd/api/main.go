package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/pcnpilot/pcn-service/internal/api/http"
	"github.com/pcnpilot/pcn-service/internal/api/http/handlers"
	"github.com/pcnpilot/pcn-service/internal/auth"
	"github.com/pcnpilot/pcn-service/internal/automation"
	"github.com/pcnpilot/pcn-service/internal/config"
	"github.com/pcnpilot/pcn-service/internal/events"
	"github.com/pcnpilot/pcn-service/internal/observability"
	"github.com/pcnpilot/pcn-service/internal/persistence"
	"github.com/pcnpilot/pcn-service/internal/repository"
	"github.com/pcnpilot/pcn-service/internal/service"
	"github.com/pcnpilot/pcn-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewStatusHistoryRepository(pool)
	letterRepo := repository.NewLetterRepository(pool)
	verificationRepo := repository.NewVerificationRepository(pool)
	issuerRepo := repository.NewPendingIssuerRepository(pool)
	challengeRepo := repository.NewPendingChallengeRepository(pool)

	dispatcher := events.NewInMemoryDispatcher()
	workerClient := automation.NewClient(cfg.Worker, logger)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{UserRepo: userRepo})
	reminderService := service.NewReminderService(ticketRepo, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		LetterRepo:  letterRepo,
		Reminders:   reminderService,
		Dispatcher:  dispatcher,
	})
	verificationService := service.NewVerificationService(service.VerificationDependencies{
		RecordRepo: verificationRepo,
		TicketRepo: ticketRepo,
		Worker:     workerClient,
		Cache:      redis,
		Reminders:  reminderService,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	escalationService := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Reminders:   reminderService,
		Dispatcher:  dispatcher,
		Config:      cfg.Escalation,
		Logger:      logger,
	})
	letterService := service.NewLetterService(service.LetterDependencies{
		LetterRepo:  letterRepo,
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Reminders:   reminderService,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	issuerService := service.NewIssuerService(service.IssuerDependencies{
		IssuerRepo:    issuerRepo,
		ChallengeRepo: challengeRepo,
		Dispatcher:    dispatcher,
		Logger:        logger,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(notificationService)

	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)
	metrics := observability.NewMetrics()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService, letterService, issuerService),
		Automation:     handlers.NewAutomationHandler(ticketService, verificationService),
		Webhooks:       handlers.NewWebhooksHandler(issuerService, cfg.Worker.WebhookSecret, logger),
		Cron:           handlers.NewCronHandler(escalationService),
		AuthMiddleware: authMiddleware,
		CronSecret:     cfg.Cron.Secret,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
