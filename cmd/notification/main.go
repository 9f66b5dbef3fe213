package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joao-fontenele/orderflow-platform/internal/config"
	"github.com/joao-fontenele/orderflow-platform/internal/messaging"
	"github.com/joao-fontenele/orderflow-platform/internal/notification"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

const retainedNotifications = 1000

func main() {
	cfg, err := config.LoadNotification()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "notification", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "notification", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("notification", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, cfg.NotificationTopic, cfg.ConsumerGroup, logger)
	defer func() { _ = consumer.Close() }()

	store := notification.NewStore(retainedNotifications)
	eventHandler := notification.NewEventHandler(notification.NewLogSender(logger), store, logger)
	httpHandler := notification.NewHandler(store, logger)

	var consuming atomic.Bool
	consumerCheck := func(context.Context) error {
		if !consuming.Load() {
			return errors.New("consumer not running")
		}
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /notifications", telemetry.WithHTTPRoute(httpHandler.HandleList))
	mux.HandleFunc("GET /health", telemetry.HealthHandler(map[string]telemetry.HealthCheck{"kafka": consumerCheck}))
	mux.Handle("GET /metrics", metricsHandler)

	server := telemetry.NewServer(cfg.Port, telemetry.InstrumentHandler(mux, "notification"))

	go func() {
		logger.Info("starting notification service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification consumer", "brokers", cfg.KafkaBrokers, "topic", cfg.NotificationTopic)

	consuming.Store(true)
	err = consumer.Consume(ctx, eventHandler.Handle)
	consuming.Store(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Error("shutdown error", "error", serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}
