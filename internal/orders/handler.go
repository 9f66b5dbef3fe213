package orders

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

type Handler struct {
	workflow *Workflow
	logger   *slog.Logger
}

func NewHandler(workflow *Workflow, logger *slog.Logger) *Handler {
	return &Handler{
		workflow: workflow,
		logger:   logger,
	}
}

// Register mounts the order routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(h.HandleCreate))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(h.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(h.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}", telemetry.WithHTTPRoute(h.HandleUpdate))
	mux.HandleFunc("POST /orders/{id}/confirm", telemetry.WithHTTPRoute(h.HandleConfirm))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(h.HandleCancel))
	mux.HandleFunc("GET /orders/{id}/history", telemetry.WithHTTPRoute(h.HandleHistory))
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	order, err := h.workflow.Create(r.Context(), req)
	if err != nil {
		h.fail(w, r, "failed to create order", err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.workflow.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to get order", err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		CustomerEmail: q.Get("customerEmail"),
		Status:        domain.OrderStatus(q.Get("status")),
	}

	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if filter.Size, err = intParam(q.Get("size")); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid size")
		return
	}

	page, err := h.workflow.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "failed to list orders", err)
		return
	}

	h.logger.DebugContext(r.Context(), "orders listed", "count", len(page.Content), "total", page.TotalElements)
	h.writeJSON(w, http.StatusOK, page)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.workflow.Update(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, "failed to update order", err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	order, err := h.workflow.Confirm(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to confirm order", err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	// The body is optional.
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.workflow.Cancel(r.Context(), id, req.Reason)
	if err != nil {
		h.fail(w, r, "failed to cancel order", err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.orderID(w, r)
	if !ok {
		return
	}

	entries, err := h.workflow.History(r.Context(), id)
	if err != nil {
		h.fail(w, r, "failed to get order history", err)
		return
	}

	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// fail writes err with the status code of its kind. Only unexpected errors
// are logged at error level; their message is not exposed.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, "error", err)
		h.writeError(w, status, "internal server error")
		return
	}

	h.logger.InfoContext(r.Context(), msg, "error", err, "status", status)

	var derr *domain.Error
	if errors.As(err, &derr) {
		h.writeError(w, status, derr.Message)
		return
	}
	h.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
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
