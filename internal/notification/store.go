package notification

import (
	"sync"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
)

// Store keeps the most recent notifications in memory, oldest evicted first.
type Store struct {
	mu    sync.RWMutex
	items []domain.Notification
	limit int
}

func NewStore(limit int) *Store {
	return &Store{limit: limit}
}

func (s *Store) Add(n domain.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, n)
	if s.limit > 0 && len(s.items) > s.limit {
		s.items = append([]domain.Notification(nil), s.items[len(s.items)-s.limit:]...)
	}
}

// List returns notifications newest first. orderID 0 means all orders.
func (s *Store) List(orderID int64) []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.Notification{}
	for i := len(s.items) - 1; i >= 0; i-- {
		if orderID == 0 || s.items[i].OrderID == orderID {
			out = append(out, s.items[i])
		}
	}
	return out
}
