// Package config reads service configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Common holds the settings every service reads.
type Common struct {
	Port           string
	LogLevel       slog.Level
	OTLPEndpoint   string
	ServiceVersion string
}

type Orders struct {
	Common
	PostgresURL       string
	KafkaBrokers      []string
	NotificationTopic string
	RedisAddr         string
	CatalogURL        string
	BillingURL        string
	AnalyticsURL      string
	FallbackPrice     decimal.Decimal
	DefaultCurrency   string
	StrictPricing     bool
	PricingCacheTTL   time.Duration
	DownstreamTimeout time.Duration
}

type Gateway struct {
	Common
	OrdersURL         string
	BillingURL        string
	CatalogURL        string
	NotificationURL   string
	AnalyticsURL      string
	ProbeTimeout      time.Duration
	DownstreamTimeout time.Duration
}

type Catalog struct {
	Common
	PostgresURL string
}

type Billing struct {
	Common
	DBPath string
}

type Notification struct {
	Common
	KafkaBrokers      []string
	NotificationTopic string
	ConsumerGroup     string
}

type Analytics struct {
	Common
	RedisAddr string
}

func loadCommon(defaultPort string) (Common, error) {
	c := Common{
		Port:           getEnv("PORT", defaultPort),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceVersion: getEnv("SERVICE_VERSION", "0.1.0"),
	}

	if err := c.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return Common{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return c, nil
}

func LoadOrders() (Orders, error) {
	common, err := loadCommon("8081")
	if err != nil {
		return Orders{}, err
	}

	cfg := Orders{
		Common:            common,
		PostgresURL:       getEnv("POSTGRES_URL", ""),
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "")),
		NotificationTopic: getEnv("NOTIFICATION_TOPIC", "order.notifications"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		CatalogURL:        getEnv("CATALOG_SERVICE_URL", ""),
		BillingURL:        getEnv("BILLING_SERVICE_URL", ""),
		AnalyticsURL:      getEnv("ANALYTICS_SERVICE_URL", ""),
		DefaultCurrency:   strings.ToUpper(getEnv("DEFAULT_CURRENCY", "USD")),
	}

	cfg.FallbackPrice, err = decimal.NewFromString(getEnv("PRICING_FALLBACK_PRICE", "1.00"))
	if err != nil {
		return Orders{}, fmt.Errorf("invalid PRICING_FALLBACK_PRICE: %w", err)
	}
	if !cfg.FallbackPrice.IsPositive() {
		return Orders{}, fmt.Errorf("PRICING_FALLBACK_PRICE must be > 0")
	}

	if cfg.StrictPricing, err = getEnvBool("PRICING_STRICT", false); err != nil {
		return Orders{}, fmt.Errorf("invalid PRICING_STRICT: %w", err)
	}
	if cfg.PricingCacheTTL, err = getEnvDuration("PRICING_CACHE_TTL", time.Hour); err != nil {
		return Orders{}, fmt.Errorf("invalid PRICING_CACHE_TTL: %w", err)
	}
	if cfg.DownstreamTimeout, err = getEnvDuration("DOWNSTREAM_TIMEOUT", 5*time.Second); err != nil {
		return Orders{}, fmt.Errorf("invalid DOWNSTREAM_TIMEOUT: %w", err)
	}

	if err := required(map[string]string{
		"POSTGRES_URL":          cfg.PostgresURL,
		"CATALOG_SERVICE_URL":   cfg.CatalogURL,
		"BILLING_SERVICE_URL":   cfg.BillingURL,
		"ANALYTICS_SERVICE_URL": cfg.AnalyticsURL,
	}); err != nil {
		return Orders{}, err
	}

	if len(cfg.DefaultCurrency) != 3 {
		return Orders{}, fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code")
	}

	return cfg, nil
}

func LoadGateway() (Gateway, error) {
	common, err := loadCommon("8080")
	if err != nil {
		return Gateway{}, err
	}

	cfg := Gateway{
		Common:          common,
		OrdersURL:       getEnv("ORDERS_SERVICE_URL", ""),
		BillingURL:      getEnv("BILLING_SERVICE_URL", ""),
		CatalogURL:      getEnv("CATALOG_SERVICE_URL", ""),
		NotificationURL: getEnv("NOTIFICATION_SERVICE_URL", ""),
		AnalyticsURL:    getEnv("ANALYTICS_SERVICE_URL", ""),
	}

	if cfg.ProbeTimeout, err = getEnvDuration("GATEWAY_PROBE_TIMEOUT", 2*time.Second); err != nil {
		return Gateway{}, fmt.Errorf("invalid GATEWAY_PROBE_TIMEOUT: %w", err)
	}
	if cfg.DownstreamTimeout, err = getEnvDuration("DOWNSTREAM_TIMEOUT", 5*time.Second); err != nil {
		return Gateway{}, fmt.Errorf("invalid DOWNSTREAM_TIMEOUT: %w", err)
	}

	if err := required(map[string]string{
		"ORDERS_SERVICE_URL":       cfg.OrdersURL,
		"BILLING_SERVICE_URL":      cfg.BillingURL,
		"CATALOG_SERVICE_URL":      cfg.CatalogURL,
		"NOTIFICATION_SERVICE_URL": cfg.NotificationURL,
		"ANALYTICS_SERVICE_URL":    cfg.AnalyticsURL,
	}); err != nil {
		return Gateway{}, err
	}

	return cfg, nil
}

func LoadCatalog() (Catalog, error) {
	common, err := loadCommon("8082")
	if err != nil {
		return Catalog{}, err
	}

	cfg := Catalog{Common: common, PostgresURL: getEnv("POSTGRES_URL", "")}
	if err := required(map[string]string{"POSTGRES_URL": cfg.PostgresURL}); err != nil {
		return Catalog{}, err
	}

	return cfg, nil
}

func LoadBilling() (Billing, error) {
	common, err := loadCommon("8083")
	if err != nil {
		return Billing{}, err
	}

	return Billing{Common: common, DBPath: getEnv("BILLING_DB_PATH", "billing.db")}, nil
}

func LoadNotification() (Notification, error) {
	common, err := loadCommon("8084")
	if err != nil {
		return Notification{}, err
	}

	cfg := Notification{
		Common:            common,
		KafkaBrokers:      splitCSV(getEnv("KAFKA_BROKERS", "")),
		NotificationTopic: getEnv("NOTIFICATION_TOPIC", "order.notifications"),
		ConsumerGroup:     getEnv("KAFKA_GROUP_ID", "notification-service"),
	}

	if len(cfg.KafkaBrokers) == 0 {
		return Notification{}, fmt.Errorf("KAFKA_BROKERS environment variable is required")
	}

	return cfg, nil
}

func LoadAnalytics() (Analytics, error) {
	common, err := loadCommon("8085")
	if err != nil {
		return Analytics{}, err
	}

	return Analytics{Common: common, RedisAddr: getEnv("REDIS_ADDR", "")}, nil
}

func required(values map[string]string) error {
	var missing []string
	for key, v := range values {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be > 0")
	}
	return d, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
