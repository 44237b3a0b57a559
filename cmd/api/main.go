package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/support-workflow/internal/api/http"
	"github.com/spec-kit/support-workflow/internal/api/http/handlers"
	"github.com/spec-kit/support-workflow/internal/auth"
	"github.com/spec-kit/support-workflow/internal/clock"
	"github.com/spec-kit/support-workflow/internal/config"
	"github.com/spec-kit/support-workflow/internal/events"
	"github.com/spec-kit/support-workflow/internal/notify"
	"github.com/spec-kit/support-workflow/internal/observability"
	"github.com/spec-kit/support-workflow/internal/persistence"
	"github.com/spec-kit/support-workflow/internal/repository"
	"github.com/spec-kit/support-workflow/internal/service"
)

func main() {
	envFile := pflag.String("env-file", "", "path to a .env file loaded before reading the environment")
	migrateOnly := pflag.Bool("migrate-only", false, "apply migrations and exit")
	seedCatalog := pflag.Bool("seed-catalog", true, "upsert the status/category/priority catalog from the seed file")
	pflag.Parse()

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := config.Load(envFiles...)
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

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if pool == nil {
		logger.Fatal("postgres is required; set POSTGRES_DSN")
	}

	if cfg.Postgres.RunMigrations || *migrateOnly {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}
	if *seedCatalog {
		catalog, err := persistence.LoadCatalogFile(cfg.Catalog.SeedPath)
		if err != nil {
			logger.Fatal("failed to load catalog", zap.String("path", cfg.Catalog.SeedPath), zap.Error(err))
		}
		if err := persistence.SeedCatalog(ctx, pool, catalog, logger); err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
	}
	if *migrateOnly {
		logger.Info("migrations complete; exiting")
		return
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	clk := clock.Real()
	metrics := observability.NewMetrics("support")
	dispatcher := events.NewInMemoryDispatcher(logger)

	var sender notify.Sender = notify.NewLogSender(logger)
	if redis.Reachable() {
		sender = notify.NewRedisSender(redis.Client, cfg.Notification.RedisChannel)
	}
	sender = notify.NewBreakerSender(sender, notify.BreakerSettings{
		Name:             "notifications",
		MaxFailures:      cfg.Notification.BreakerMaxFailures,
		OpenTimeout:      cfg.Notification.BreakerOpenTimeout(),
		HalfOpenRequests: cfg.Notification.BreakerHalfOpenReqs,
	})

	userRepo := repository.NewUserRepository(pool)
	agentRepo := repository.NewAgentRepository(pool)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL(), clk)
	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:   userRepo,
		AgentRepo:  agentRepo,
		Tokens:     tokens,
		BcryptCost: cfg.Auth.BcryptCost,
	})

	auditService := service.NewAuditService(service.AuditDependencies{
		AuditRepo:    repository.NewAuditLogRepository(pool),
		Logger:       logger,
		Metrics:      metrics,
		Clock:        clk,
		WriteTimeout: cfg.Audit.WriteTimeout(),
	})

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Dispatcher:      dispatcher,
		Sender:          sender,
		Logger:          logger,
		Metrics:         metrics,
		Clock:           clk,
		MaxAttempts:     cfg.Notification.MaxAttempts,
		Backoff:         cfg.Notification.RetryBackoff(),
		DeliveryTimeout: cfg.Notification.DeliveryTimeout(),
	})
	notificationService.RegisterHandlers()

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:     repository.NewTicketRepository(pool),
		ResponseRepo:   repository.NewTicketResponseRepository(pool),
		AttachmentRepo: repository.NewAttachmentRepository(pool),
		CatalogRepo:    repository.NewCatalogRepository(pool),
		AgentRepo:      agentRepo,
		Audit:          auditService,
		Dispatcher:     dispatcher,
		Clock:          clk,
		Logger:         logger,
	})

	invitationService := service.NewInvitationService(service.InvitationDependencies{
		InvitationRepo:   repository.NewInvitationRepository(pool),
		CompanyRepo:      repository.NewCompanyRepository(pool),
		MembershipRepo:   repository.NewMembershipRepository(pool),
		ProvisioningRepo: repository.NewProvisioningRepository(pool),
		Identity:         authService,
		Audit:            auditService,
		Dispatcher:       dispatcher,
		Clock:            clk,
		Logger:           logger,
		Metrics:          metrics,
		DefaultTTL:       cfg.Invitation.DefaultTTL(),
		ProvisionTimeout: cfg.Invitation.ProvisionTimeout(),
	})

	workflow := service.NewWorkflow(service.WorkflowDependencies{
		Tickets:     ticketService,
		Invitations: invitationService,
		Audit:       auditService,
		AgentRepo:   agentRepo,
		Dispatcher:  dispatcher,
		Clock:       clk,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		JSONEncoder:  jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder:  jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Tickets:        handlers.NewTicketsHandler(workflow),
		Invitations:    handlers.NewInvitationsHandler(workflow),
		Catalog:        handlers.NewCatalogHandler(workflow),
		Auth:           handlers.NewAuthHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, userRepo, agentRepo),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
