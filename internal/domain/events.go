package domain

import "time"

type NotificationType string

const (
	NotificationOrderConfirmed NotificationType = "ORDER_CONFIRMED"
	NotificationOrderCancelled NotificationType = "ORDER_CANCELLED"
)

// NotificationEvent is published by the orders service and consumed by the
// notification service.
type NotificationEvent struct {
	Type          NotificationType `json:"type"`
	OrderID       int64            `json:"orderId"`
	OrderNumber   string           `json:"orderNumber"`
	CustomerEmail string           `json:"customerEmail"`
	TotalAmount   string           `json:"totalAmount"`
	Currency      string           `json:"currency"`
	Reason        string           `json:"reason,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

func (e NotificationEvent) EventType() string {
	return string(e.Type)
}

type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	OrderID     int64            `json:"orderId"`
	OrderNumber string           `json:"orderNumber"`
	Recipient   string           `json:"recipient"`
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	CreatedAt   time.Time        `json:"createdAt"`
}

const (
	EventOrderCreated   = "orders.created"
	EventOrderConfirmed = "orders.confirmed"
	EventOrderCancelled = "orders.cancelled"
)

type AnalyticsEvent struct {
	Event      string    `json:"event"`
	OrderID    int64     `json:"orderId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

const (
	ServiceStatusOK   = "OK"
	ServiceStatusUp   = "UP"
	ServiceStatusDown = "DOWN"
)

type ServiceStatus struct {
	Service string            `json:"service"`
	Status  string            `json:"status"`
	Details map[string]string `json:"details,omitempty"`
}
