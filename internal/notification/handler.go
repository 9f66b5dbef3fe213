package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
	"github.com/joao-fontenele/orderflow-platform/internal/messaging"
)

// Sender delivers a rendered notification to its recipient.
type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// EventHandler turns order notification events from kafka into delivered,
// queryable notifications.
type EventHandler struct {
	sender Sender
	store  *Store
	logger *slog.Logger
	now    func() time.Time
}

func NewEventHandler(sender Sender, store *Store, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		sender: sender,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (h *EventHandler) Handle(ctx context.Context, payload []byte) error {
	var event domain.NotificationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: unmarshal notification event: %v", messaging.ErrPoison, err)
	}

	n, err := h.render(event)
	if err != nil {
		return err
	}

	h.logger.InfoContext(ctx, "processing notification event", "type", event.Type, "order_id", event.OrderID)

	if err := h.sender.Send(ctx, n); err != nil {
		h.logger.ErrorContext(ctx, "failed to send notification", "error", err, "order_id", event.OrderID)
		return fmt.Errorf("send notification: %w", err)
	}

	h.store.Add(n)
	return nil
}

func (h *EventHandler) render(event domain.NotificationEvent) (domain.Notification, error) {
	n := domain.Notification{
		ID:          uuid.NewString(),
		Type:        event.Type,
		OrderID:     event.OrderID,
		OrderNumber: event.OrderNumber,
		Recipient:   event.CustomerEmail,
		CreatedAt:   h.now().UTC(),
	}

	switch event.Type {
	case domain.NotificationOrderConfirmed:
		n.Subject = "Order Confirmation: " + event.OrderNumber
		n.Body = fmt.Sprintf("Your order %s has been confirmed. Total: %s %s.", event.OrderNumber, event.TotalAmount, event.Currency)
	case domain.NotificationOrderCancelled:
		n.Subject = "Order Cancelled: " + event.OrderNumber
		n.Body = fmt.Sprintf("Your order %s has been cancelled.", event.OrderNumber)
		if event.Reason != "" {
			n.Body += " Reason: " + event.Reason + "."
		}
	default:
		return domain.Notification{}, fmt.Errorf("%w: unknown notification type %q", messaging.ErrPoison, event.Type)
	}

	if n.Recipient == "" {
		return domain.Notification{}, fmt.Errorf("%w: notification for order %d has no recipient", messaging.ErrPoison, event.OrderID)
	}

	return n, nil
}

// LogSender stands in for an email provider and only logs deliveries.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, n domain.Notification) error {
	s.logger.InfoContext(ctx, "email sent", "to", n.Recipient, "subject", n.Subject)
	return nil
}
