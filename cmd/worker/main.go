package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/dishdash-backend/internal/notifications"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/instance"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/dishdash-backend/pkg/pubsub"
	"github.com/angelmondragon/dishdash-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		Instance:    instance.GetID(),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer redisClient.Close()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer pubsubClient.Close()

	transport, stopTransport := buildTransport(cfg, logg, pubsubClient)
	defer stopTransport()

	conn := dbClient.DB()
	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repo:      notifications.NewRepository(conn),
		Orders:    orders.NewReader(orders.NewRepository(conn)),
		Transport: transport,
		Channels:  notifications.ParseChannels(cfg.Notifications.Channels),
		Logger:    logg,
	})
	requireResource(ctx, logg, "notification dispatcher", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	notificationConsumer, err := notifications.NewConsumer(dispatcher, pubsubClient.OrdersSubscription(), manager, logg)
	requireResource(ctx, logg, "notification consumer", err)

	service, err := NewService(ServiceParams{
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		NotificationConsumer: notificationConsumer,
		MetricsAddr:          cfg.App.MetricsAddr,
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"env":         cfg.App.Env,
	})
	logg.Info(runCtx, "starting worker")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func buildTransport(cfg *config.Config, logg *logger.Logger, client *pubsub.Client) (notifications.Transport, func()) {
	if strings.EqualFold(strings.TrimSpace(cfg.Notifications.Transport), "log") {
		return notifications.NewLogTransport(logg), func() {}
	}
	topic := pubsub.NewTopicPublisher(client.NotificationPublisher())
	return notifications.NewPubSubTransport(topic), topic.Stop
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
