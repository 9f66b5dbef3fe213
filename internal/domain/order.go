package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusNew, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is a legal successor of s.
// CONFIRMED and CANCELLED are terminal.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return s == OrderStatusNew && (next == OrderStatusConfirmed || next == OrderStatusCancelled)
}

type OrderItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	UnitPrice   Money  `json:"unitPrice"`
	Quantity    int    `json:"quantity"`
	LineTotal   Money  `json:"lineTotal"`
}

type Order struct {
	ID            int64       `json:"id"`
	OrderNumber   string      `json:"orderNumber"`
	CustomerEmail string      `json:"customerEmail"`
	Status        OrderStatus `json:"status"`
	TotalAmount   Money       `json:"totalAmount"`
	Currency      string      `json:"currency"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	Items         []OrderItem `json:"items"`
}

// Total sums the line totals of items, rounded to cents.
func Total(items []OrderItem) Money {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal.Decimal)
	}
	return NewMoney(total)
}

type StatusHistoryEntry struct {
	ID        int64        `json:"id"`
	OrderID   int64        `json:"orderId"`
	OldStatus *OrderStatus `json:"oldStatus"`
	NewStatus OrderStatus  `json:"newStatus"`
	Reason    string       `json:"reason"`
	ChangedAt time.Time    `json:"changedAt"`
}

type IdempotencyRecord struct {
	Key         string    `json:"key"`
	RequestHash string    `json:"requestHash"`
	OrderID     int64     `json:"orderId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type OrderPage struct {
	Content       []Order `json:"content"`
	Page          int     `json:"page"`
	Size          int     `json:"size"`
	TotalElements int     `json:"totalElements"`
	TotalPages    int     `json:"totalPages"`
}
