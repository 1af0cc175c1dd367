package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dishdash-backend/internal/coupons"
	"github.com/angelmondragon/dishdash-backend/internal/cron"
	"github.com/angelmondragon/dishdash-backend/internal/giftcards"
	"github.com/angelmondragon/dishdash-backend/internal/notifications"
	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/instance"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/migrate"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/redis"
)

const lockNameFormat = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		Instance:    instance.GetID(),
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return service.Run(gctx) })
	if addr := cfg.App.MetricsAddr; addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, addr, logg) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()

	couponService, err := coupons.NewService(coupons.ServiceParams{Repo: coupons.NewRepository(conn), Logger: logg})
	if err != nil {
		return nil, err
	}
	giftCardService, err := giftcards.NewService(giftcards.ServiceParams{Repo: giftcards.NewRepository(conn), Logger: logg})
	if err != nil {
		return nil, err
	}

	couponExpiry, err := cron.NewExpiryJob(cron.ExpiryJobParams{
		Name:    cron.CouponExpiryJobName,
		Logger:  logg,
		Sweeper: couponService,
	})
	if err != nil {
		return nil, err
	}
	giftCardExpiry, err := cron.NewExpiryJob(cron.ExpiryJobParams{
		Name:    cron.GiftCardExpiryJobName,
		Logger:  logg,
		Sweeper: giftCardService,
	})
	if err != nil {
		return nil, err
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		Repository: notifications.NewRepository(conn),
		Retention:  cfg.Cron.NotificationRetention,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(conn),
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}

	registry, err := cron.NewRegistry(couponExpiry, giftCardExpiry, notificationCleanup, outboxRetention)
	if err != nil {
		return nil, err
	}
	return registry.Only(cfg.Cron.Jobs)
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockNameFormat, env)
}
