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

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/orderflow-platform/internal/analytics"
	"github.com/joao-fontenele/orderflow-platform/internal/config"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadAnalytics()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "analytics", cfg.LogLevel)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "analytics", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("analytics", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	var counters analytics.Counters = analytics.NewMemoryCounters()
	checks := map[string]telemetry.HealthCheck{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()

		redisCounters := analytics.NewRedisCounters(rdb)
		counters = redisCounters
		checks["redis"] = redisCounters.Ping
	} else {
		logger.Warn("REDIS_ADDR not set, counters are kept in memory")
	}

	handler := analytics.NewHandler(counters, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /analytics/track", telemetry.WithHTTPRoute(handler.HandleTrack))
	mux.HandleFunc("GET /analytics/counters", telemetry.WithHTTPRoute(handler.HandleCounters))
	mux.HandleFunc("GET /health", telemetry.HealthHandler(checks))
	mux.Handle("GET /metrics", metricsHandler)

	server := telemetry.NewServer(cfg.Port, telemetry.InstrumentHandler(mux, "analytics"))

	go func() {
		logger.Info("starting analytics service", "port", cfg.Port)
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
