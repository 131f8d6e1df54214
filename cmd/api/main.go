package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/servicedesk/internal/api/http"
	"github.com/spec-kit/servicedesk/internal/api/http/handlers"
	"github.com/spec-kit/servicedesk/internal/auth"
	"github.com/spec-kit/servicedesk/internal/authz"
	"github.com/spec-kit/servicedesk/internal/config"
	"github.com/spec-kit/servicedesk/internal/events"
	"github.com/spec-kit/servicedesk/internal/notify"
	"github.com/spec-kit/servicedesk/internal/observability"
	"github.com/spec-kit/servicedesk/internal/persistence"
	"github.com/spec-kit/servicedesk/internal/repository"
	"github.com/spec-kit/servicedesk/internal/repository/memory"
	"github.com/spec-kit/servicedesk/internal/service"
	"github.com/spec-kit/servicedesk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readiness := map[string]handlers.Pinger{}

	var store repository.Store
	switch cfg.App.Store {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		store = memory.NewStore()
	default:
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
		pool := pg.PoolHandle()
		users := repository.NewCachedUserRepository(repository.NewUserRepository(pool), cfg.Cache.UserTTL())
		store = repository.NewPostgresStore(pool, users)
		readiness["postgres"] = pg
	}

	var sink notify.Sink
	switch cfg.Notification.Sink {
	case "log":
		sink = notify.NewLogSink(logger)
	default:
		rdb, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()
		sink = notify.NewRedisSink(rdb.Client, cfg.Notification.StreamKey, cfg.Notification.StreamMaxLen)
		readiness["redis"] = rdb
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	dispatcher := events.NewInMemoryDispatcher(logger)
	repos := store.Repositories()

	authService := service.NewAuthService(cfg.Auth, repos.Users, logger)
	if created, err := authService.EnsureBootstrapAdmin(ctx); err != nil {
		logger.Fatal("failed to bootstrap admin", zap.Error(err))
	} else if created {
		logger.Info("bootstrap super admin created", zap.String("email", cfg.Auth.BootstrapEmail))
	}

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:    dispatcher,
		Notifications: repos.Notifications,
		Sink:          sink,
		Metrics:       metrics,
		Logger:        logger,
		Config:        cfg.Notification,
	})
	notificationService.RegisterHandlers()

	workflowService := service.NewWorkflowService(service.WorkflowDependencies{
		Store:      store,
		Gate:       authz.NewGate(),
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	relay := worker.NewOutboxRelay(notificationService, cfg.Notification.RelaySchedule, 30*time.Second, logger)
	if err := relay.Start(); err != nil {
		logger.Fatal("failed to start outbox relay", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: httptransport.ErrorHandler(logger),
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(workflowService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), repos.Users),
		Gatherer:       registry,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := relay.Stop(shutdownCtx); err != nil {
		logger.Warn("outbox relay shutdown", zap.Error(err))
	}
	if err := notificationService.Wait(shutdownCtx); err != nil {
		logger.Warn("pending notification deliveries abandoned", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
