package telemetry

import (
	"context"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitMeterProvider installs a Prometheus-backed global MeterProvider with Go
// runtime metrics. It returns the /metrics handler and a shutdown function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(newResource(serviceName, serviceVersion)),
	)
	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, err
	}

	return promhttp.Handler(), mp.Shutdown, nil
}

var (
	degradedOnce    sync.Once
	degradedCounter metric.Int64Counter
)

// RecordDegradedRead counts a read that fell back to a default value
// instead of failing the caller.
func RecordDegradedRead(ctx context.Context, component string) {
	degradedOnce.Do(func() {
		degradedCounter, _ = otel.Meter("orderflow").Int64Counter("degraded_reads",
			metric.WithDescription("Reads that fell back to a default value"),
		)
	})
	if degradedCounter != nil {
		degradedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("component", component)))
	}
}
