package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dispatchlab/notify-gateway/internal/config"
	"github.com/dispatchlab/notify-gateway/internal/domain"
	"github.com/dispatchlab/notify-gateway/internal/handler"
	"github.com/dispatchlab/notify-gateway/internal/infra/postgresql"
	"github.com/dispatchlab/notify-gateway/internal/infra/postgresql/migrations"
	infraredis "github.com/dispatchlab/notify-gateway/internal/infra/redis"
	"github.com/dispatchlab/notify-gateway/internal/observability"
	"github.com/dispatchlab/notify-gateway/internal/queue"
	"github.com/dispatchlab/notify-gateway/internal/repository"
	"github.com/dispatchlab/notify-gateway/internal/sender"
	"github.com/dispatchlab/notify-gateway/internal/service"
	"github.com/dispatchlab/notify-gateway/internal/template"
	"github.com/dispatchlab/notify-gateway/internal/transport"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notify-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stderr sync failure is harmless

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close() //nolint:errcheck // best-effort close on shutdown

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer rabbit.Close() //nolint:errcheck // best-effort close on shutdown

	notificationRepo := repository.NewGormNotificationRepo(db)
	templateRepo := repository.NewGormTemplateRepo(db)

	limiter, err := infraredis.NewRateLimiter(redisClient, rateLimits(cfg), logger)
	if err != nil {
		return err
	}
	dedup, err := infraredis.NewDeduplicator(redisClient, cfg.DedupTTL(), logger)
	if err != nil {
		return err
	}
	coldQueue, err := infraredis.NewColdQueue(redisClient, logger)
	if err != nil {
		return err
	}
	templateCache, err := infraredis.NewTemplateCache(redisClient, cfg.TemplateCacheTTL(), logger)
	if err != nil {
		return err
	}

	resolver, err := template.NewResolver(templateRepo, templateCache, cfg.TemplateDir, cfg.DefaultLocale, logger)
	if err != nil {
		return err
	}

	senders := buildSenders(cfg, logger)

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	gateway, err := service.NewGateway(limiter, dedup, notificationRepo, publisher, metrics, logger, cfg.DefaultLocale)
	if err != nil {
		return err
	}
	state, err := service.NewStateService(notificationRepo, logger)
	if err != nil {
		return err
	}
	worker, err := service.NewWorker(
		consumer, notificationRepo, resolver, senders, state, coldQueue,
		metrics, logger, cfg.WorkerConcurrency, cfg.ColdQueueDelay(),
	)
	if err != nil {
		return err
	}
	scheduler, err := service.NewScheduler(
		coldQueue, gateway, dedup, state,
		metrics, logger, cfg.ColdQueueScanInterval(), cfg.ColdQueueDelay(),
	)
	if err != nil {
		return err
	}
	reconciler, err := service.NewWebhookReconciler(cfg.WebhookPublicKey, notificationRepo, state, metrics, logger)
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		AppName:               "notify-gateway",
		ErrorHandler:          transport.NewErrorHandler(logger),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(transport.CorrelationContext())
	app.Use(metrics.FiberMiddleware())

	registerRoutes(app, routeDeps{
		registry:      registry,
		db:            db,
		redis:         redisClient,
		gateway:       gateway,
		notifications: notificationRepo,
		templates:     templateRepo,
		templateCache: templateCache,
		reconciler:    reconciler,
		logger:        logger,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		return worker.Start(ctx)
	})
	g.Go(func() error {
		return scheduler.Start(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

type routeDeps struct {
	registry      *prometheus.Registry
	db            *gorm.DB
	redis         *goredis.Client
	gateway       *service.Gateway
	notifications repository.NotificationRepository
	templates     repository.TemplateRepository
	templateCache handler.CacheInvalidator
	reconciler    *service.WebhookReconciler
	logger        *zap.Logger
}

func registerRoutes(app *fiber.App, deps routeDeps) {
	notificationHandler := handler.NewNotificationHandler(deps.gateway, deps.notifications)
	templateHandler := handler.NewTemplateHandler(deps.templates, deps.templateCache, deps.logger)
	webhookHandler := handler.NewWebhookHandler(deps.reconciler, deps.logger)
	healthHandler := handler.NewHealthHandler(deps.db, deps.redis)

	app.Get("/livez", healthHandler.Livez)
	app.Get("/readyz", healthHandler.Readyz)
	app.Get("/metrics", adaptor.HTTPHandler(
		promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}),
	))

	v1 := app.Group("/v1")
	v1.Post("/notifications", notificationHandler.Create)
	v1.Get("/notifications", notificationHandler.List)
	v1.Get("/notifications/:id", notificationHandler.Get)
	v1.Get("/channels", notificationHandler.Channels)

	v1.Post("/templates", templateHandler.Create)
	v1.Get("/templates", templateHandler.List)
	v1.Get("/templates/:id", templateHandler.Get)
	v1.Put("/templates/:id", templateHandler.Update)
	v1.Delete("/templates/:id", templateHandler.Delete)

	v1.Post("/webhooks/email", webhookHandler.HandleEmailEvents)
}

func rateLimits(cfg *config.Config) map[domain.Channel]infraredis.ChannelLimit {
	return map[domain.Channel]infraredis.ChannelLimit{
		domain.ChannelEmail: {
			Max:    int64(cfg.EmailRateMax),
			Window: time.Duration(cfg.EmailRateWindowSeconds) * time.Second,
		},
		domain.ChannelSMS: {
			Max:    int64(cfg.SMSRateMax),
			Window: time.Duration(cfg.SMSRateWindowSeconds) * time.Second,
		},
		domain.ChannelChat: {
			Max:    int64(cfg.ChatRateMax),
			Window: time.Duration(cfg.ChatRateWindowSeconds) * time.Second,
		},
		domain.ChannelRichMessage: {
			Max:    int64(cfg.RichMsgRateMax),
			Window: time.Duration(cfg.RichMsgRateWindowSeconds) * time.Second,
		},
	}
}

func buildSenders(cfg *config.Config, logger *zap.Logger) *sender.Registry {
	retry := sender.RetryConfig{
		MaxAttempts: cfg.SendMaxAttempts,
		Delay:       cfg.SendRetryDelay(),
		Timeout:     cfg.SendTimeout(),
	}

	registry := sender.NewRegistry(logger)
	registry.Register(sender.WithResilience(
		sender.NewEmailSender(cfg.ResendAPIKey, cfg.EmailFrom), retry, logger))
	registry.Register(sender.WithResilience(
		sender.NewSMSSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.SMSFrom), retry, logger))
	registry.Register(sender.WithResilience(
		sender.NewChatSender(cfg.ChatBotToken), retry, logger))
	registry.Register(sender.WithResilience(
		sender.NewRichMessageSender(cfg.RichMessageAuthToken, cfg.RichMessageSenderName), retry, logger))
	return registry
}
