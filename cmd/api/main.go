package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dishdash-backend/api/routes"
	"github.com/angelmondragon/dishdash-backend/internal/catalog"
	"github.com/angelmondragon/dishdash-backend/internal/coupons"
	"github.com/angelmondragon/dishdash-backend/internal/deliveries"
	"github.com/angelmondragon/dishdash-backend/internal/gateway"
	"github.com/angelmondragon/dishdash-backend/internal/giftcards"
	"github.com/angelmondragon/dishdash-backend/internal/loyalty"
	"github.com/angelmondragon/dishdash-backend/internal/notifications"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/internal/payments"
	"github.com/angelmondragon/dishdash-backend/internal/settings"
	squarewebhook "github.com/angelmondragon/dishdash-backend/internal/webhooks/square"
	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/instance"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/migrate"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/dishdash-backend/pkg/pubsub"
	"github.com/angelmondragon/dishdash-backend/pkg/redis"
	"github.com/angelmondragon/dishdash-backend/pkg/square"
)

// shutdownTimeout bounds how long in-flight requests may finish after SIGTERM.
const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	locationTopic := pubsub.NewTopicPublisher(pubsubClient.LocationPublisher())
	defer locationTopic.Stop()

	paymentGateway, err := buildGateway(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap payment gateway", err)
		os.Exit(1)
	}

	conn := dbClient.DB()
	outboxService := outbox.NewService(outbox.NewRepository(conn), logg)
	settingsProvider := settings.NewCachedProvider(
		settings.NewDBProvider(conn, cfg.Restaurant),
		redisClient,
		cfg.Restaurant.SettingsCacheTTL,
		logg,
	)

	couponService, err := coupons.NewService(coupons.ServiceParams{
		Repo:   coupons.NewRepository(conn),
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create coupon service", err)
		os.Exit(1)
	}

	giftCardService, err := giftcards.NewService(giftcards.ServiceParams{
		Repo:      giftcards.NewRepository(conn),
		Limiter:   redisClient,
		Password:  cfg.Password,
		RateLimit: cfg.GiftCardLimit,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create gift card service", err)
		os.Exit(1)
	}

	loyaltyService, err := loyalty.NewService(loyalty.ServiceParams{
		Repo:     loyalty.NewRepository(conn),
		Settings: settingsProvider,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create loyalty service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		Tx:        dbClient,
		Outbox:    outboxService,
		Catalog:   catalog.NewRepository(conn),
		Settings:  settingsProvider,
		Coupons:   couponService,
		GiftCards: giftCardService,
		Loyalty:   loyaltyService,
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:   payments.NewRepository(conn),
		Tx:     dbClient,
		Outbox: outboxService,
		Orders: orderService,
		Methods: payments.NewRegistry(
			payments.CashHandler{},
			payments.CardHandler{Gateway: paymentGateway},
		),
		Customers: paymentGateway,
		Currency:  cfg.Restaurant.Currency,
		Metrics:   metrics.NewPaymentMetrics(prometheus.DefaultRegisterer),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment service", err)
		os.Exit(1)
	}

	deliveryService, err := deliveries.NewService(deliveries.ServiceParams{
		Repo:      deliveries.NewRepository(conn),
		Tx:        dbClient,
		Outbox:    outboxService,
		Orders:    orderService,
		Locations: deliveries.NewPubSubLocationSink(locationTopic),
		Logger:    logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	webhookService, err := squarewebhook.NewService(squarewebhook.ServiceParams{
		Payments: paymentService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create square webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency manager", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Params{
			Config:             cfg,
			Logger:             logg,
			DB:                 dbClient,
			Redis:              redisClient,
			Orders:             orderService,
			Payments:           paymentService,
			Deliveries:         deliveryService,
			Coupons:            couponService,
			GiftCards:          giftCardService,
			Loyalty:            loyaltyService,
			Notifications:      notificationService,
			SquareWebhook:      webhookService,
			SquareWebhookGuard: webhookGuard,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if addr := cfg.App.MetricsAddr; addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, addr, logg) })
	}

	if err := g.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// buildGateway returns the Square gateway, or the log gateway when the feature
// flag routes card payments away from Square.
func buildGateway(ctx context.Context, cfg *config.Config, logg *logger.Logger) (gateway.Gateway, error) {
	if cfg.FeatureFlags.LogGateway {
		logg.Warn(ctx, "card payments routed to log gateway")
		return gateway.NewLogGateway(logg, false), nil
	}
	client, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		return nil, err
	}
	return gateway.NewSquareGateway(gateway.SquareGatewayParams{
		Client:         client,
		DelayedCapture: cfg.Square.DelayedCapture,
		Currency:       cfg.Restaurant.Currency,
		Logger:         logg,
	})
}
