package orders

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
	"github.com/joao-fontenele/orderflow-platform/internal/idempotency"
	"github.com/joao-fontenele/orderflow-platform/internal/sequence"
)

// MemoryStore is a Store for tests and local runs without postgres.
type MemoryStore struct {
	mu          sync.Mutex
	nextID      int64
	nextEntryID int64
	orders      map[int64]domain.Order
	numbers     map[string]bool
	idem        map[string]domain.IdempotencyRecord
	history     map[int64][]domain.StatusHistoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[int64]domain.Order),
		numbers: make(map[string]bool),
		idem:    make(map[string]domain.IdempotencyRecord),
		history: make(map[int64][]domain.StatusHistoryEntry),
	}
}

func (s *MemoryStore) Create(_ context.Context, order *domain.Order, idem *domain.IdempotencyRecord, created domain.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.numbers[order.OrderNumber] {
		return sequence.ErrDuplicate
	}
	if idem != nil {
		if _, ok := s.idem[idem.Key]; ok {
			return idempotency.ErrKeyExists
		}
	}

	s.nextID++
	order.ID = s.nextID
	s.orders[order.ID] = cloneOrder(*order)
	s.numbers[order.OrderNumber] = true

	created.OrderID = order.ID
	s.appendLocked(created)

	if idem != nil {
		idem.OrderID = order.ID
		s.idem[idem.Key] = *idem
	}

	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	out := cloneOrder(order)
	return &out, nil
}

func (s *MemoryStore) FindIdempotency(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.idem[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]domain.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Order
	for _, order := range s.orders {
		if filter.CustomerEmail != "" && order.CustomerEmail != filter.CustomerEmail {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, order)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := filter.Page * filter.Size
	if start > total {
		start = total
	}
	end := start + filter.Size
	if end > total {
		end = total
	}

	page := make([]domain.Order, 0, end-start)
	for _, order := range matched[start:end] {
		page = append(page, cloneOrder(order))
	}
	return page, total, nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, entry domain.StatusHistoryEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[entry.OrderID]
	if !ok || entry.OldStatus == nil || order.Status != *entry.OldStatus {
		return false, nil
	}

	order.Status = entry.NewStatus
	order.UpdatedAt = entry.ChangedAt
	s.orders[order.ID] = order
	s.appendLocked(entry)
	return true, nil
}

func (s *MemoryStore) UpdateDetails(_ context.Context, order *domain.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[order.ID]
	if !ok || current.Status != domain.OrderStatusNew {
		return false, nil
	}

	current.CustomerEmail = order.CustomerEmail
	current.Items = order.Items
	current.TotalAmount = order.TotalAmount
	current.Currency = order.Currency
	current.UpdatedAt = order.UpdatedAt
	s.orders[order.ID] = cloneOrder(current)
	return true, nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, entry domain.StatusHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(entry)
	return nil
}

func (s *MemoryStore) History(_ context.Context, orderID int64) ([]domain.StatusHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]domain.StatusHistoryEntry, len(s.history[orderID]))
	copy(entries, s.history[orderID])
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ChangedAt.Before(entries[j].ChangedAt)
	})
	return entries, nil
}

func (s *MemoryStore) MaxNumber(_ context.Context, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var max string
	for number := range s.numbers {
		if strings.HasPrefix(number, prefix) && (max == "" || sequence.Less(max, number)) {
			max = number
		}
	}
	return max, nil
}

func (s *MemoryStore) appendLocked(entry domain.StatusHistoryEntry) {
	s.nextEntryID++
	entry.ID = s.nextEntryID
	s.history[entry.OrderID] = append(s.history[entry.OrderID], entry)
}

func cloneOrder(order domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(order.Items))
	copy(items, order.Items)
	order.Items = items
	return order
}
