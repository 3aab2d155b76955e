package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/itsm-portal/internal/api/http"
	"github.com/spec-kit/itsm-portal/internal/api/http/handlers"
	"github.com/spec-kit/itsm-portal/internal/auth"
	"github.com/spec-kit/itsm-portal/internal/config"
	"github.com/spec-kit/itsm-portal/internal/events"
	"github.com/spec-kit/itsm-portal/internal/observability"
	"github.com/spec-kit/itsm-portal/internal/persistence"
	"github.com/spec-kit/itsm-portal/internal/repository"
	"github.com/spec-kit/itsm-portal/internal/service"
	"github.com/spec-kit/itsm-portal/internal/worker"
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
	pool := pg.Pool

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartSubscribers(
		service.NewAuditService(dispatcher, logger),
		service.NewNotificationService(dispatcher, nil, logger, cfg.Notification),
	)

	userRepo := repository.NewUserRepository(pool)
	teamRepo := repository.NewTeamRepository(pool)

	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		UserRepo:       userRepo,
		TeamRepo:       teamRepo,
		RevocationRepo: repository.NewTokenRevocationRepository(redis.Client),
		Dispatcher:     dispatcher,
		Metrics:        metrics,
		Logger:         logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:      repository.NewTicketRepository(pool),
		HistoryRepo:     repository.NewTicketHistoryRepository(pool),
		UserRepo:        userRepo,
		DepartmentRepo:  repository.NewDepartmentRepository(pool),
		ClosureCodeRepo: repository.NewClosureCodeRepository(pool),
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
	})

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
			"postgres": pg,
			"redis":    redis,
		}),
		Auth:           handlers.NewAuthHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), authService),
		Limiter:        redis,
		RateLimit:      cfg.RateLimit,
		Metrics:        metrics,
		Logger:         logger,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.ShutdownWithTimeout(10 * time.Second)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
