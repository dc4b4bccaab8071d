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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/stitchwell-backend/api/controllers"
	"github.com/angelmondragon/stitchwell-backend/api/routes"
	"github.com/angelmondragon/stitchwell-backend/internal/cart"
	"github.com/angelmondragon/stitchwell-backend/internal/catalog"
	"github.com/angelmondragon/stitchwell-backend/internal/checkout"
	"github.com/angelmondragon/stitchwell-backend/internal/orders"
	"github.com/angelmondragon/stitchwell-backend/internal/payments"
	stripewebhook "github.com/angelmondragon/stitchwell-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/stitchwell-backend/pkg/config"
	"github.com/angelmondragon/stitchwell-backend/pkg/db"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
	"github.com/angelmondragon/stitchwell-backend/pkg/metrics"
	"github.com/angelmondragon/stitchwell-backend/pkg/migrate"
	"github.com/angelmondragon/stitchwell-backend/pkg/outbox"
	"github.com/angelmondragon/stitchwell-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/stitchwell-backend/pkg/stripe"
)

const (
	sessionSweepInterval = time.Minute
	shutdownTimeout      = 15 * time.Second
)

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
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	breaker := pkgstripe.NewBreaker(pkgstripe.BreakerSettings{
		MaxFailures: cfg.Stripe.BreakerMaxFailures,
		OpenTimeout: cfg.Stripe.BreakerOpenTimeout,
	}, logg)
	gateway := pkgstripe.NewIntentClient(stripeClient, breaker)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	checkoutMetrics := metrics.NewCheckoutMetrics(promRegistry)

	catalogService, err := catalog.NewService(catalog.NewRepository(dbClient.DB()), logg)
	if err != nil {
		return err
	}
	carts, err := cart.NewRedisProvider(redisClient, cfg.Cart, catalogService, logg)
	if err != nil {
		return err
	}

	initiator, err := payments.NewInitiator(gateway, cfg.Checkout.DefaultCurrency, checkoutMetrics, logg)
	if err != nil {
		return err
	}
	confirmer, err := payments.NewConfirmer(gateway, cfg.Checkout.ReturnURL, checkoutMetrics, logg)
	if err != nil {
		return err
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, logg)
	if err != nil {
		return err
	}

	registry := checkout.NewRegistry(cfg.Checkout.SessionTTL)
	go registry.Run(ctx, sessionSweepInterval, logg)

	orchestrator, err := checkout.NewOrchestrator(registry, carts, initiator, confirmer, ordersService, cfg.Checkout, checkoutMetrics, logg)
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		OrdersRepo:        ordersRepo,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewEventDeduper(redisClient, cfg.Eventing.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		return err
	}

	addr := ":" + cfg.App.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"stripe": stripeClient.Environment(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config: cfg,
			Logger: logg,
			Redis:  redisClient,
			Pingers: map[string]controllers.Pinger{
				"db":    dbClient,
				"redis": redisClient,
			},
			Metrics:       promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
			Carts:         carts,
			Catalog:       catalogService,
			Intents:       initiator,
			Checkout:      orchestrator,
			Orders:        ordersService,
			StripeClient:  stripeClient,
			StripeWebhook: webhookService,
			StripeGuard:   webhookGuard,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
