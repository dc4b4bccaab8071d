package routes

import (
	"cmp"
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/stitchwell-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/stitchwell-backend/api/controllers/cart"
	checkoutcontrollers "github.com/angelmondragon/stitchwell-backend/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/stitchwell-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/stitchwell-backend/api/controllers/payments"
	webhookcontrollers "github.com/angelmondragon/stitchwell-backend/api/controllers/webhooks"
	"github.com/angelmondragon/stitchwell-backend/api/middleware"
	"github.com/angelmondragon/stitchwell-backend/internal/cart"
	"github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/internal/payments"
	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/stitchwell-backend/pkg/redis"
)

const (
	paymentRateWindow = time.Minute
	// used when the eventing config leaves the replay windows unset
	defaultCartReplayTTL     = 24 * time.Hour
	defaultCheckoutReplayTTL = 7 * 24 * time.Hour
)

// redisStore backs request idempotency and rate limiting.
type redisStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type intentCreator interface {
	CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, opts ...payments.IntentOption) (*payments.Handle, error)
}

// Deps are the services mounted by NewRouter.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger
	Redis  redisStore
	// Pingers are checked by /health/ready, keyed by dependency name.
	Pingers map[string]controllers.Pinger
	Metrics http.Handler

	Carts    cartcontrollers.Opener
	Catalog  cart.ProductLookup
	Intents  intentCreator
	Checkout checkoutcontrollers.Orchestrator
	Orders   orders.Service

	StripeClient  webhookcontrollers.SigningClient
	StripeWebhook webhookcontrollers.StripeWebhookService
	StripeGuard   webhookcontrollers.EventClaimer
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	cartReplay := middleware.Idempotency(d.Redis, cmp.Or(cfg.Eventing.RequestIdempotencyTTL, defaultCartReplayTTL), logg)
	checkoutReplay := middleware.Idempotency(d.Redis, cmp.Or(cfg.Eventing.CheckoutIdempotencyTTL, defaultCheckoutReplayTTL), logg)
	paymentPolicy := middleware.NewRateLimitPolicy(
		"payments",
		paymentRateWindow,
		cfg.App.PaymentRateLimitIP,
		cfg.App.PaymentRateLimitUser,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, d.Pingers, logg))
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(d.StripeWebhook, d.StripeClient, d.StripeGuard, logg))
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.CartSession(true, logg))

		r.Get("/", cartcontrollers.CartFetch(d.Carts, logg))
		r.Delete("/", cartcontrollers.CartClear(d.Carts, logg))
		r.With(cartReplay).Post("/items", cartcontrollers.CartAddItem(d.Carts, d.Catalog, logg))
		r.With(cartReplay).Post("/custom-items", cartcontrollers.CartAddCustomItem(d.Carts, d.Catalog, logg))
		r.Patch("/items/{lineId}", cartcontrollers.CartUpdateQuantity(d.Carts, logg))
		r.Delete("/items/{lineId}", cartcontrollers.CartRemoveItem(d.Carts, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Auth(cfg.JWT, "", logg)).Get("/orders/{orderId}", ordercontrollers.Detail(d.Orders, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, cfg.Checkout.LoginURL, logg))
			r.Use(middleware.CartSession(false, logg))
			r.Use(middleware.RateLimit(paymentPolicy, d.Redis, logg))

			r.With(cartReplay).Post("/payments/intents", paymentcontrollers.CreateIntent(d.Carts, d.Intents, logg))

			r.Route("/checkout", func(r chi.Router) {
				r.With(checkoutReplay).Post("/", checkoutcontrollers.Start(d.Checkout, logg))
				r.Get("/{checkoutId}", checkoutcontrollers.Get(d.Checkout, logg))
				r.Delete("/{checkoutId}", checkoutcontrollers.Abandon(d.Checkout, logg))
				r.Put("/{checkoutId}/shipping", checkoutcontrollers.UpdateShipping(d.Checkout, logg))
				r.With(checkoutReplay).Post("/{checkoutId}/confirm", checkoutcontrollers.Confirm(d.Checkout, logg))
				r.Post("/{checkoutId}/resume", checkoutcontrollers.Resume(d.Checkout, logg))
				r.With(checkoutReplay).Post("/{checkoutId}/retry-intent", checkoutcontrollers.RetryIntent(d.Checkout, logg))
				r.With(checkoutReplay).Post("/{checkoutId}/retry-order", checkoutcontrollers.RetryOrder(d.Checkout, logg))
			})
		})
	})

	return r
}
