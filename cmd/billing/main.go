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

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/joao-fontenele/orderflow-platform/internal/billing"
	"github.com/joao-fontenele/orderflow-platform/internal/config"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadBilling()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := telemetry.NewLogger(os.Stdout, "billing", cfg.LogLevel)

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, "billing", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("billing", cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("failed to get database handle", "error", err)
		os.Exit(1)
	}
	// sqlite allows a single writer.
	sqlDB.SetMaxOpenConns(1)
	defer func() { _ = sqlDB.Close() }()

	store := billing.NewStore(db)
	if err := store.Migrate(); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	service := billing.NewService(store, logger)
	handler := billing.NewHandler(service, store, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /billing/invoices", telemetry.WithHTTPRoute(handler.HandleCreate))
	mux.HandleFunc("GET /billing/invoices", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("GET /billing/invoices/{id}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.HandleFunc("GET /health", telemetry.HealthHandler(map[string]telemetry.HealthCheck{"sqlite": store.Ping}))
	mux.Handle("GET /metrics", metricsHandler)

	server := telemetry.NewServer(cfg.Port, telemetry.InstrumentHandler(mux, "billing"))

	go func() {
		logger.Info("starting billing service", "port", cfg.Port, "db_path", cfg.DBPath)
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
