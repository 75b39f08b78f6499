package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/commercebridge/ideal-gateway/api/controllers"
	webhookcontrollers "github.com/commercebridge/ideal-gateway/api/controllers/webhooks"
	"github.com/commercebridge/ideal-gateway/api/routes"
	"github.com/commercebridge/ideal-gateway/internal/checkout"
	"github.com/commercebridge/ideal-gateway/internal/paymentmethods"
	"github.com/commercebridge/ideal-gateway/internal/payments"
	"github.com/commercebridge/ideal-gateway/internal/reconciler"
	stripewebhook "github.com/commercebridge/ideal-gateway/internal/webhooks/stripe"
	"github.com/commercebridge/ideal-gateway/pkg/config"
	"github.com/commercebridge/ideal-gateway/pkg/db"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
	"github.com/commercebridge/ideal-gateway/pkg/metrics"
	"github.com/commercebridge/ideal-gateway/pkg/migrate"
	"github.com/commercebridge/ideal-gateway/pkg/outbox"
	"github.com/commercebridge/ideal-gateway/pkg/pubsub"
	"github.com/commercebridge/ideal-gateway/pkg/redis"
	stripeclient "github.com/commercebridge/ideal-gateway/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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

	stripeClient, err := stripeclient.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	if cfg.GCP.ProjectID != "" {
		// The outbox insert only needs the repository; the pubsub client is
		// validated here so a bad topic fails the boot, not the first payment.
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
	}
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	paymentsRepo := payments.NewRepository(dbClient.DB())

	methodsService, err := paymentmethods.NewService(paymentmethods.ServiceParams{
		Repo: paymentsRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment methods service", err)
		os.Exit(1)
	}

	reconcilerService, err := reconciler.NewService(reconciler.ServiceParams{
		Repo:              paymentsRepo,
		Methods:           methodsService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
		Metrics:           paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Repo:              paymentsRepo,
		Gateway:           stripeClient,
		Reconciler:        reconcilerService,
		Methods:           methodsService,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Config:            cfg.Checkout,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:              paymentsRepo,
		Gateway:           stripeClient,
		Outbox:            outboxService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Reconciler: reconcilerService,
		Events:     stripewebhook.NewEventStore(dbClient.DB()),
		Logger:     logg,
		Metrics:    paymentMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	checkoutCtrl, err := controllers.NewCheckoutController(checkoutService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout controller", err)
		os.Exit(1)
	}
	paymentsCtrl, err := controllers.NewPaymentsController(paymentsService, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payments controller", err)
		os.Exit(1)
	}
	stripeCtrl, err := webhookcontrollers.NewStripeController(webhookService, webhookGuard, stripeClient.SigningSecret(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook controller", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.RouterParams{
		AppConfig: cfg.App,
		Logger:    logg,
		Health:    controllers.NewHealthController(cfg.App, dbClient, redisClient, logg),
		Checkout:  checkoutCtrl,
		Payments:  paymentsCtrl,
		Stripe:    stripeCtrl,
		Metrics:   registry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
