package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

// NewRouter mounts the aggregate endpoints and the pass-through routes.
// Callers may add more routes, such as /health, to the returned router.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(routeAttribute)
	r.Use(middleware.Recoverer)

	r.Get("/gateway/system/status", h.HandleSystemStatus)
	r.Get("/gateway/orders/latest", h.HandleLatestOrders)
	r.Get("/gateway/orders/{id}", h.HandleOrderDetails)
	r.Get("/gateway/catalog", h.HandleCatalog)
	r.Get("/gateway/analytics/counters", h.HandleAnalyticsCounters)
	r.Get("/gateway/overview", h.HandleOverview)

	r.HandleFunc("/orders", h.HandleOrders)
	r.HandleFunc("/orders/*", h.HandleOrders)
	r.HandleFunc("/catalog", h.HandleCatalogProxy)
	r.HandleFunc("/catalog/*", h.HandleCatalogProxy)
	r.HandleFunc("/billing/*", h.HandleBilling)
	r.HandleFunc("/notifications", h.HandleNotifications)
	r.HandleFunc("/notifications/*", h.HandleNotifications)
	r.HandleFunc("/analytics/*", h.HandleAnalytics)

	return r
}

// routeAttribute tags the request span with the matched chi pattern, which
// is only complete once routing has finished.
func routeAttribute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				telemetry.SetHTTPRoute(r, pattern)
				trace.SpanFromContext(r.Context()).SetName(r.Method + " " + pattern)
			}
		}
	})
}
