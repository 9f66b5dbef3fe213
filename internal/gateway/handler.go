package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
)

type Handler struct {
	aggregator *Aggregator
	services   Services
	logger     *slog.Logger
}

func NewHandler(aggregator *Aggregator, services Services, logger *slog.Logger) *Handler {
	return &Handler{
		aggregator: aggregator,
		services:   services,
		logger:     logger,
	}
}

func (h *Handler) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.SystemStatus(r.Context()))
}

func (h *Handler) HandleLatestOrders(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.LatestOrders(r.Context()))
}

func (h *Handler) HandleOrderDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	details, err := h.aggregator.OrderDetails(r.Context(), id)
	if err != nil {
		var derr *domain.Error
		if !errors.As(err, &derr) {
			h.logger.ErrorContext(r.Context(), "failed to get order details", "error", err, "order_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		h.writeError(w, statusFor(derr.Kind), derr.Message)
		return
	}

	h.writeJSON(w, http.StatusOK, details)
}

func (h *Handler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.writeJSON(w, http.StatusOK, h.aggregator.Catalog(r.Context(), q.Get("category"), q.Get("search")))
}

func (h *Handler) HandleAnalyticsCounters(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.AnalyticsCounters(r.Context()))
}

func (h *Handler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.aggregator.Overview(r.Context()))
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.services.Orders, r.URL.Path)
}

func (h *Handler) HandleCatalogProxy(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.services.Catalog, r.URL.Path)
}

func (h *Handler) HandleBilling(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.services.Billing, r.URL.Path)
}

func (h *Handler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.services.Notification, r.URL.Path)
}

func (h *Handler) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.services.Analytics, r.URL.Path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to forward request", "error", err, "path", path)
		h.writeError(w, http.StatusBadGateway, "service unavailable")
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.InfoContext(r.Context(), "request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to copy response body", "error", err)
	}
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindState:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
