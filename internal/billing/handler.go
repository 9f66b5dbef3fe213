package billing

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
)

type Handler struct {
	service *Service
	store   *Store
	logger  *slog.Logger
}

func NewHandler(service *Service, store *Store, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		store:   store,
		logger:  logger,
	}
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, created, err := h.service.Issue(r.Context(), req)
	if err != nil {
		if domain.KindOf(err) == domain.KindValidation {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to issue invoice", "error", err, "order_id", req.OrderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, inv)
}

// HandleList lists invoices, optionally narrowed to one order with
// ?orderId=.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("orderId")
	if raw == "" {
		invoices, err := h.store.List(r.Context())
		if err != nil {
			h.logger.ErrorContext(r.Context(), "failed to list invoices", "error", err)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		h.writeJSON(w, http.StatusOK, invoices)
		return
	}

	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid orderId")
		return
	}

	inv, err := h.store.FindByOrderID(r.Context(), orderID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to find invoice", "error", err, "order_id", orderID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	invoices := []domain.Invoice{}
	if inv != nil {
		invoices = append(invoices, *inv)
	}
	h.writeJSON(w, http.StatusOK, invoices)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	inv, err := h.store.FindByID(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to get invoice", "error", err, "id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if inv == nil {
		h.writeError(w, http.StatusNotFound, "invoice not found")
		return
	}

	h.writeJSON(w, http.StatusOK, inv)
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
