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

	"github.com/joao-fontenele/orderflow-platform/internal/config"
	"github.com/joao-fontenele/orderflow-platform/internal/gateway"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadGateway()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "gateway", cfg.LogLevel)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "gateway", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("gateway", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	httpClient := telemetry.NewHTTPClient(cfg.DownstreamTimeout)

	services := gateway.Services{
		Orders:       gateway.NewServiceProxy(cfg.OrdersURL, httpClient),
		Billing:      gateway.NewServiceProxy(cfg.BillingURL, httpClient),
		Notification: gateway.NewServiceProxy(cfg.NotificationURL, httpClient),
		Analytics:    gateway.NewServiceProxy(cfg.AnalyticsURL, httpClient),
		Catalog:      gateway.NewServiceProxy(cfg.CatalogURL, httpClient),
	}
	aggregator := gateway.NewAggregator(services, cfg.ProbeTimeout, cfg.DownstreamTimeout, logger)
	handler := gateway.NewHandler(aggregator, services, logger)

	router := gateway.NewRouter(handler)
	router.Get("/health", telemetry.HealthHandler(nil))
	router.Handle("/metrics", metricsHandler)

	server := telemetry.NewServer(cfg.Port, telemetry.InstrumentHandler(router, "gateway"))

	go func() {
		logger.Info("starting gateway service", "port", cfg.Port)
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
		os.Exit(1)
	}
}
