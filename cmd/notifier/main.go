package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/charityconnect/charityconnect-backend/internal/audit"
	"github.com/charityconnect/charityconnect-backend/internal/catalog"
	"github.com/charityconnect/charityconnect-backend/internal/notifications"
	"github.com/charityconnect/charityconnect-backend/internal/orders"
	"github.com/charityconnect/charityconnect-backend/pkg/config"
	"github.com/charityconnect/charityconnect-backend/pkg/db"
	"github.com/charityconnect/charityconnect-backend/pkg/instance"
	"github.com/charityconnect/charityconnect-backend/pkg/logger"
	"github.com/charityconnect/charityconnect-backend/pkg/mailer"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox/idempotency"
	"github.com/charityconnect/charityconnect-backend/pkg/pubsub"
	"github.com/charityconnect/charityconnect-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "notifier"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "notifier"

	logg = logger.New(logger.Options{
		ServiceName: "notifier",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()
	if err := pubsubClient.EnsureSubscription(context.Background(), cfg.PubSub.NotificationSubscription); err != nil {
		logg.Error(context.Background(), "notification subscription missing", err)
		os.Exit(1)
	}

	mail, err := mailer.New(cfg.Mail, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create mailer", err)
		os.Exit(1)
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	orderService, err := orders.NewService(orders.ServiceParams{Repo: orders.NewRepository(conn), DB: dbClient})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	catalogService, err := catalog.NewService(catalog.ServiceParams{
		Repo:   catalog.NewRepository(conn),
		TX:     dbClient,
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Audit:  audit.NewRecorder(),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create catalog service", err)
		os.Exit(1)
	}

	receiptConsumer, err := notifications.NewConsumer(notifications.ConsumerParams{
		Subscription:  pubsubClient.NotificationSubscription(),
		Orders:        orderService,
		Events:        catalogService,
		Mailer:        mail,
		Idempotency:   manager,
		Logger:        logg,
		PublicBaseURL: cfg.App.PublicBaseURL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Logger:   logg,
		DB:       dbClient,
		Redis:    redisClient,
		PubSub:   pubsubClient,
		Consumer: receiptConsumer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifier", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID("local"),
	})
	logg.Info(ctx, "starting notifier")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "notifier stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "notifier shutting down gracefully")
}
