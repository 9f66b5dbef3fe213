package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

const (
	gatewayService = "gateway"
	latestOrders   = 10
)

var tracer = otel.Tracer("gateway/aggregator")

// Services holds one proxy per downstream service.
type Services struct {
	Orders       *ServiceProxy
	Billing      *ServiceProxy
	Notification *ServiceProxy
	Analytics    *ServiceProxy
	Catalog      *ServiceProxy
}

type target struct {
	name  string
	proxy *ServiceProxy
}

// targets lists the probed services in reporting order.
func (s Services) targets() []target {
	return []target{
		{"orders", s.Orders},
		{"billing", s.Billing},
		{"notification", s.Notification},
		{"analytics", s.Analytics},
		{"catalog", s.Catalog},
	}
}

type OrderDetails struct {
	Order   *domain.Order   `json:"order"`
	Invoice *domain.Invoice `json:"invoice"`
}

type Overview struct {
	Services     []domain.ServiceStatus `json:"services"`
	LatestOrders []domain.Order         `json:"latestOrders"`
	Counters     map[string]int64       `json:"counters"`
	GeneratedAt  time.Time              `json:"generatedAt"`
}

// Aggregator composes read models from the downstream services. Apart from
// OrderDetails nothing here returns an error: a failed downstream read
// degrades to an empty value.
type Aggregator struct {
	services     Services
	probeTimeout time.Duration
	callTimeout  time.Duration
	logger       *slog.Logger
	probes       metric.Int64Counter
}

func NewAggregator(services Services, probeTimeout, callTimeout time.Duration, logger *slog.Logger) *Aggregator {
	probes, _ := otel.Meter("gateway").Int64Counter("gateway_probes",
		metric.WithDescription("Health probes by service and result"),
	)

	return &Aggregator{
		services:     services,
		probeTimeout: probeTimeout,
		callTimeout:  callTimeout,
		logger:       logger,
		probes:       probes,
	}
}

// SystemStatus probes every service concurrently. The gateway reports
// itself first, followed by the services in a fixed order.
func (a *Aggregator) SystemStatus(ctx context.Context) []domain.ServiceStatus {
	ctx, span := tracer.Start(ctx, "gateway.SystemStatus")
	defer span.End()

	targets := a.services.targets()
	statuses := make([]domain.ServiceStatus, len(targets)+1)
	statuses[0] = domain.ServiceStatus{Service: gatewayService, Status: domain.ServiceStatusOK}

	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			statuses[i+1] = a.probe(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	return statuses
}

func (a *Aggregator) probe(ctx context.Context, t target) domain.ServiceStatus {
	ctx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()

	details, err := t.proxy.Probe(ctx)
	status := domain.ServiceStatus{Service: t.name, Status: domain.ServiceStatusUp, Details: details}
	if err != nil {
		a.logger.WarnContext(ctx, "service probe failed", "service", t.name, "error", err)
		status.Status = domain.ServiceStatusDown
		if status.Details == nil {
			status.Details = map[string]string{"error": err.Error()}
		}
	}

	a.probes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", t.name),
		attribute.String("status", status.Status),
	))
	return status
}

func (a *Aggregator) LatestOrders(ctx context.Context) []domain.Order {
	var page domain.OrderPage
	path := "/orders?page=0&size=" + strconv.Itoa(latestOrders)
	if err := a.read(ctx, "orders", a.services.Orders, path, &page); err != nil || page.Content == nil {
		return []domain.Order{}
	}
	return page.Content
}

func (a *Aggregator) Catalog(ctx context.Context, category, search string) []domain.Product {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if search != "" {
		q.Set("search", search)
	}
	path := "/catalog"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var products []domain.Product
	if err := a.read(ctx, "catalog", a.services.Catalog, path, &products); err != nil || products == nil {
		return []domain.Product{}
	}
	return products
}

func (a *Aggregator) AnalyticsCounters(ctx context.Context) map[string]int64 {
	var counters map[string]int64
	if err := a.read(ctx, "analytics", a.services.Analytics, "/analytics/counters", &counters); err != nil || counters == nil {
		return map[string]int64{}
	}
	return counters
}

// OrderDetails fetches the order and then its invoice. The order is
// required; a missing or unreachable invoice yields a nil Invoice.
func (a *Aggregator) OrderDetails(ctx context.Context, id string) (*OrderDetails, error) {
	ctx, span := tracer.Start(ctx, "gateway.OrderDetails")
	defer span.End()

	var order domain.Order
	callCtx, cancel := context.WithTimeout(ctx, a.callTimeout)
	_, orderErr := a.services.Orders.GetJSON(callCtx, "/orders/"+url.PathEscape(id), &order)
	cancel()

	if orderErr != nil {
		var se *StatusError
		if errors.As(orderErr, &se) {
			switch se.Code {
			case http.StatusNotFound:
				return nil, domain.NotFoundError("order %s not found", id)
			case http.StatusBadRequest:
				return nil, domain.ValidationError("invalid order id %q", id)
			}
		}
		a.logger.ErrorContext(ctx, "failed to fetch order", "error", orderErr, "order_id", id)
		return nil, domain.UpstreamError(orderErr, "orders service unavailable")
	}

	details := &OrderDetails{Order: &order}

	var invoices []domain.Invoice
	path := "/billing/invoices?" + url.Values{"orderId": {strconv.FormatInt(order.ID, 10)}}.Encode()
	if err := a.read(ctx, "billing", a.services.Billing, path, &invoices); err == nil && len(invoices) > 0 {
		details.Invoice = &invoices[0]
	}
	return details, nil
}

// Overview composes status, latest orders and counters in one document.
func (a *Aggregator) Overview(ctx context.Context) *Overview {
	ctx, span := tracer.Start(ctx, "gateway.Overview")
	defer span.End()

	overview := &Overview{GeneratedAt: time.Now().UTC()}

	var g errgroup.Group
	g.Go(func() error {
		overview.Services = a.SystemStatus(ctx)
		return nil
	})
	g.Go(func() error {
		overview.LatestOrders = a.LatestOrders(ctx)
		return nil
	})
	g.Go(func() error {
		overview.Counters = a.AnalyticsCounters(ctx)
		return nil
	})
	_ = g.Wait()

	return overview
}

// read performs a bounded GET and records a degraded read on failure.
func (a *Aggregator) read(ctx context.Context, service string, proxy *ServiceProxy, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	if _, err := proxy.GetJSON(ctx, path, out); err != nil {
		a.logger.WarnContext(ctx, "downstream read failed", "service", service, "path", path, "error", err)
		telemetry.RecordDegradedRead(ctx, "gateway."+service)
		return err
	}
	return nil
}
