package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/novapush/dispatcher/internal/broadcast"
	"github.com/novapush/dispatcher/internal/config"
	"github.com/novapush/dispatcher/internal/domain"
	"github.com/novapush/dispatcher/internal/handler"
	"github.com/novapush/dispatcher/internal/idempotency"
	"github.com/novapush/dispatcher/internal/infra/postgresql"
	"github.com/novapush/dispatcher/internal/infra/postgresql/migrations"
	infraredis "github.com/novapush/dispatcher/internal/infra/redis"
	"github.com/novapush/dispatcher/internal/observability"
	"github.com/novapush/dispatcher/internal/provider"
	"github.com/novapush/dispatcher/internal/queue"
	"github.com/novapush/dispatcher/internal/repository"
	"github.com/novapush/dispatcher/internal/service"
	"github.com/novapush/dispatcher/internal/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const twilioCallbackPath = "/v1/webhooks/twilio"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer mq.Close()

	metrics := observability.NewMetrics()
	hub := broadcast.NewHub(logger, metrics)
	defer hub.Close()

	deliveryRepo := repository.NewGormDeliveryRepo(db)
	templateRepo := repository.NewGormTemplateRepo(db)

	guard, err := idempotency.NewRedisGuard(rdb, cfg.IdempotencyTTL)
	if err != nil {
		logger.Fatal("idempotency guard init failed", zap.Error(err))
	}

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		logger.Fatal("rate limiter init failed", zap.Error(err))
	}

	registry, err := buildTransportRegistry(cfg)
	if err != nil {
		logger.Fatal("transport registry init failed", zap.Error(err))
	}

	publisher := queue.NewRabbitMQPublisher(mq)
	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerConcurrency, logger)

	dispatchSvc, err := service.NewDispatchService(deliveryRepo, templateRepo, guard, publisher, hub, logger)
	if err != nil {
		logger.Fatal("dispatch service init failed", zap.Error(err))
	}

	webhookSvc, err := service.NewWebhookService(deliveryRepo, hub, logger)
	if err != nil {
		logger.Fatal("webhook service init failed", zap.Error(err))
	}
	webhookSvc.SetMetrics(metrics)

	worker, err := service.NewWorkerService(
		deliveryRepo,
		templateRepo,
		consumer,
		registry,
		rateLimiter,
		hub,
		cfg.WorkerConcurrency,
		cfg.RetryMaxAttempts,
		cfg.RetryBaseDelay,
		logger,
	)
	if err != nil {
		logger.Fatal("worker service init failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	scanner, err := service.NewResumeScanner(deliveryRepo, publisher, cfg.ResumeScanInterval, 0, logger)
	if err != nil {
		logger.Fatal("resume scanner init failed", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(metrics.HTTPMiddleware())

	// Open routes: health, metrics, signature-verified webhooks, and the
	// delivery update stream.
	handler.RegisterHealthRoutes(app, sqlDB, rdb, mq)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterWebhookRoutes(app, webhookSvc, cfg.TwilioAuthToken, cfg.PublicBaseURL, logger); err != nil {
		logger.Fatal("webhook route registration failed", zap.Error(err))
	}
	handler.RegisterStreamRoutes(app, hub, logger)

	// Everything below requires the API token.
	app.Use(transport.BearerAuth(cfg.APIToken))
	if err := handler.RegisterDeliveryRoutes(app, dispatchSvc); err != nil {
		logger.Fatal("delivery route registration failed", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(gctx)
	})
	g.Go(func() error {
		return scanner.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("api listening", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.Shutdown()
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Fatal("service terminated", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func buildTransportRegistry(cfg *config.Config) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	statusCallback := ""
	if base := strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/"); base != "" {
		statusCallback = base + twilioCallbackPath
	}

	if err := registry.Register(domain.ChannelSMS, provider.NewTwilioTransport(provider.TwilioConfig{
		AccountSID:     cfg.TwilioAccountSID,
		AuthToken:      cfg.TwilioAuthToken,
		From:           cfg.TwilioFrom,
		StatusCallback: statusCallback,
	})); err != nil {
		return nil, err
	}

	if err := registry.Register(domain.ChannelEmail, provider.NewSendGridTransport(provider.SendGridConfig{
		APIKey: cfg.SendGridAPIKey,
		From:   cfg.EmailFrom,
	})); err != nil {
		return nil, err
	}

	if err := registry.Register(domain.ChannelPush, provider.NewWebPushTransport(provider.WebPushConfig{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
	})); err != nil {
		return nil, err
	}

	return registry, nil
}
