package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-desk/internal/api/http"
	"github.com/spec-kit/support-desk/internal/api/http/handlers"
	"github.com/spec-kit/support-desk/internal/auth"
	"github.com/spec-kit/support-desk/internal/config"
	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/lock"
	"github.com/spec-kit/support-desk/internal/mq"
	"github.com/spec-kit/support-desk/internal/observability"
	"github.com/spec-kit/support-desk/internal/persistence"
	"github.com/spec-kit/support-desk/internal/repository"
	"github.com/spec-kit/support-desk/internal/service"
	"github.com/spec-kit/support-desk/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger,
		zap.String("service", cfg.App.Name),
		zap.String("env", cfg.App.Env))
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

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		userRepo   repository.UserRepository
		ticketRepo repository.TicketRepository
	)
	if pg.Enabled() {
		userRepo = repository.NewUserRepository(pg.PoolHandle())
		ticketRepo = repository.NewTicketRepository(pg.PoolHandle())
	} else {
		userRepo = repository.NewMemoryUserRepository()
		ticketRepo = repository.NewMemoryTicketRepository()
	}

	var (
		locker lock.Locker = lock.NewKeyedMutex()
		cursor service.Cursor
	)
	if redis.Enabled() {
		locker = lock.NewRedisLocker(redis.Client, lock.RedisOptions{
			TTL:           cfg.Locking.TTL(),
			WaitTimeout:   cfg.Locking.WaitTimeout(),
			RetryInterval: cfg.Locking.RetryInterval(),
		})
		cursor = service.NewRedisCursor(redis.Client, cfg.Assignment.CursorKey)
	}

	dispatcher := events.NewInMemoryDispatcher()
	var publisher mq.Publisher
	if cfg.Broker.URL != "" {
		rabbit, err := mq.NewRabbitPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			logger.Warn("rabbitmq unavailable; events stay local", zap.Error(err))
		} else {
			defer rabbit.Close() //nolint:errcheck
			publisher = rabbit
		}
	}
	worker.StartNotificationWorker(dispatcher, publisher, logger)

	authService := service.NewAuthService(*cfg, userRepo, logger)
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: ticketRepo,
		UserRepo:   userRepo,
		Directory:  service.NewAgentDirectory(userRepo),
		Policy:     service.NewRoundRobinPolicy(cursor, logger),
		Locker:     locker,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{
		AppName:     cfg.App.Name,
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Dependency{
			"postgres": pg,
			"redis":    redis,
		}, metrics),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: authMiddleware,
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
