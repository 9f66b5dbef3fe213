package analytics

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
)

type Handler struct {
	counters Counters
	logger   *slog.Logger
}

func NewHandler(counters Counters, logger *slog.Logger) *Handler {
	return &Handler{
		counters: counters,
		logger:   logger,
	}
}

func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	var event domain.AnalyticsEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event.Event = strings.TrimSpace(event.Event)
	if event.Event == "" {
		h.writeError(w, http.StatusBadRequest, "event is required")
		return
	}

	if err := h.counters.Incr(r.Context(), event.Event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to record event", "error", err, "event", event.Event)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.DebugContext(r.Context(), "event tracked", "event", event.Event, "order_id", event.OrderID)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) HandleCounters(w http.ResponseWriter, r *http.Request) {
	counters, err := h.counters.All(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read counters", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, counters)
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
