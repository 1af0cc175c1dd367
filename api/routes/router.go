package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/dishdash-backend/api/controllers"
	couponcontrollers "github.com/angelmondragon/dishdash-backend/api/controllers/coupons"
	deliverycontrollers "github.com/angelmondragon/dishdash-backend/api/controllers/deliveries"
	giftcardcontrollers "github.com/angelmondragon/dishdash-backend/api/controllers/giftcards"
	loyaltycontrollers "github.com/angelmondragon/dishdash-backend/api/controllers/loyalty"
	ordercontrollers "github.com/angelmondragon/dishdash-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/dishdash-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/dishdash-backend/api/controllers/webhooks"
	"github.com/angelmondragon/dishdash-backend/api/middleware"
	"github.com/angelmondragon/dishdash-backend/internal/coupons"
	"github.com/angelmondragon/dishdash-backend/internal/deliveries"
	"github.com/angelmondragon/dishdash-backend/internal/giftcards"
	"github.com/angelmondragon/dishdash-backend/internal/loyalty"
	"github.com/angelmondragon/dishdash-backend/internal/notifications"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/internal/payments"
	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/dishdash-backend/pkg/redis"
)

// RedisStore is the slice of the Redis client the HTTP layer uses for
// idempotency replay, rate limiting and readiness.
type RedisStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

type Params struct {
	Config *config.Config
	Logger *logger.Logger
	DB     controllers.Pinger
	Redis  RedisStore

	Orders        orders.Service
	Payments      payments.Service
	Deliveries    deliveries.Service
	Coupons       coupons.Service
	GiftCards     giftcards.Service
	Loyalty       loyalty.Service
	Notifications notifications.Service

	SquareWebhook      webhookcontrollers.SquareWebhookService
	SquareWebhookGuard webhookcontrollers.SquareWebhookGuard
}

func NewRouter(p Params) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	giftCardPolicy := middleware.NewRateLimitPolicy(
		"gift-card-balance",
		cfg.GiftCardLimit.Window,
		cfg.GiftCardLimit.IPLimit,
		cfg.GiftCardLimit.CodeLimit,
	)

	staff := middleware.RequireRole(logg, enums.RoleStaff, enums.RoleAdmin)
	dispatch := middleware.RequireRole(logg, enums.RoleDispatcher, enums.RoleAdmin)
	driver := middleware.RequireRole(logg, enums.RoleDriver)

	readiness := map[string]controllers.Pinger{"postgres": p.DB, "redis": p.Redis}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/square", webhookcontrollers.SquareWebhook(p.SquareWebhook, cfg.Square, p.SquareWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(p.Orders, logg))
			r.Get("/", ordercontrollers.ListMine(p.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
			r.With(staff).Patch("/{orderId}/status", ordercontrollers.UpdateStatus(p.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(p.Orders, logg))
			r.Get("/{orderId}/payments", paymentcontrollers.ListForOrder(p.Payments, logg))
			r.Post("/{orderId}/payments", paymentcontrollers.Process(p.Payments, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/confirm", paymentcontrollers.Confirm(p.Payments, logg))
			r.With(staff).Post("/{paymentId}/refund", paymentcontrollers.Refund(p.Payments, logg))
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.With(dispatch).Post("/", deliverycontrollers.Create(p.Deliveries, logg))
			r.Get("/{deliveryId}", deliverycontrollers.Detail(p.Deliveries, logg))
			r.With(dispatch).Post("/{deliveryId}/assign", deliverycontrollers.Assign(p.Deliveries, logg))
			r.Group(func(r chi.Router) {
				r.Use(driver)
				r.Post("/{deliveryId}/accept", deliverycontrollers.Accept(p.Deliveries, logg))
				r.Post("/{deliveryId}/location", deliverycontrollers.Location(p.Deliveries, logg))
				r.Post("/{deliveryId}/picked-up", deliverycontrollers.PickedUp(p.Deliveries, logg))
				r.Post("/{deliveryId}/delivered", deliverycontrollers.Delivered(p.Deliveries, logg))
				r.Post("/{deliveryId}/failed", deliverycontrollers.Failed(p.Deliveries, logg))
			})
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/validate", couponcontrollers.Validate(p.Coupons, logg))
			r.Post("/apply", couponcontrollers.Apply(p.Coupons, logg))
		})

		r.Route("/gift-cards", func(r chi.Router) {
			r.With(middleware.RateLimit(giftCardPolicy, p.Redis, logg)).Post("/balance", giftcardcontrollers.Balance(p.GiftCards, logg))
			r.With(staff).Post("/use", giftcardcontrollers.Use(p.GiftCards, logg))
		})

		r.Route("/loyalty", func(r chi.Router) {
			r.Get("/me", loyaltycontrollers.Me(p.Loyalty, logg))
			r.Get("/me/transactions", loyaltycontrollers.MyTransactions(p.Loyalty, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Post("/coupons", couponcontrollers.Create(p.Coupons, logg))
			r.Post("/gift-cards", giftcardcontrollers.Issue(p.GiftCards, logg))
			r.Post("/loyalty/{userId}/adjust", loyaltycontrollers.Adjust(p.Loyalty, logg))
		})
	})

	return r
}
