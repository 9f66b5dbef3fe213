package orders

import (
	"context"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
)

type ListFilter struct {
	CustomerEmail string
	Status        domain.OrderStatus
	Page          int
	Size          int
}

// Store persists orders, their items, status history and idempotency
// records. Lookups return (nil, nil) when nothing matches.
//
// Create writes the order, its items, the initial history entry and the
// optional idempotency record in one transaction. It fails with
// sequence.ErrDuplicate when the order number is taken and with
// idempotency.ErrKeyExists when the key was recorded concurrently.
//
// TransitionStatus moves an order from *entry.OldStatus to entry.NewStatus
// and appends entry atomically. It reports false when the order was not in
// the expected status.
type Store interface {
	Create(ctx context.Context, order *domain.Order, idem *domain.IdempotencyRecord, created domain.StatusHistoryEntry) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	FindIdempotency(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, int, error)
	TransitionStatus(ctx context.Context, entry domain.StatusHistoryEntry) (bool, error)
	UpdateDetails(ctx context.Context, order *domain.Order) (bool, error)
	AppendHistory(ctx context.Context, entry domain.StatusHistoryEntry) error
	History(ctx context.Context, orderID int64) ([]domain.StatusHistoryEntry, error)
	MaxNumber(ctx context.Context, prefix string) (string, error)
}
