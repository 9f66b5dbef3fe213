package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/orderflow-platform/internal/analytics"
	"github.com/joao-fontenele/orderflow-platform/internal/billing"
	"github.com/joao-fontenele/orderflow-platform/internal/catalog"
	"github.com/joao-fontenele/orderflow-platform/internal/config"
	"github.com/joao-fontenele/orderflow-platform/internal/messaging"
	"github.com/joao-fontenele/orderflow-platform/internal/orders"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadOrders()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "orders", cfg.LogLevel)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "orders", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("orders", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenPostgres(ctx, cfg.PostgresURL, "orders")
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	repo := orders.NewOrderRepository(db)
	checks := map[string]telemetry.HealthCheck{"postgres": repo.Ping}

	httpClient := telemetry.NewHTTPClient(cfg.DownstreamTimeout)

	var pricing orders.PricingResolver = catalog.NewClient(cfg.CatalogURL, httpClient)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()

		pricing = catalog.NewCachedResolver(catalog.NewClient(cfg.CatalogURL, httpClient), rdb, cfg.PricingCacheTTL, logger)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var publisher orders.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, cfg.NotificationTopic)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, notifications disabled")
	}

	workflow := orders.NewWorkflow(
		repo,
		pricing,
		billing.NewClient(cfg.BillingURL, httpClient),
		publisher,
		analytics.NewClient(cfg.AnalyticsURL, httpClient),
		orders.Config{
			FallbackPrice:   cfg.FallbackPrice,
			DefaultCurrency: cfg.DefaultCurrency,
			StrictPricing:   cfg.StrictPricing,
			EffectTimeout:   cfg.DownstreamTimeout,
		},
		logger,
	)
	handler := orders.NewHandler(workflow, logger)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("GET /health", telemetry.HealthHandler(checks))
	mux.Handle("GET /metrics", metricsHandler)

	server := telemetry.NewServer(cfg.Port, telemetry.InstrumentHandler(mux, "orders"))

	go func() {
		logger.Info("starting orders service", "port", cfg.Port, "strict_pricing", cfg.StrictPricing)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	workflow.Close()
}
