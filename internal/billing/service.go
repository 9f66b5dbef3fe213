package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
	"github.com/joao-fontenele/orderflow-platform/internal/sequence"
)

// Service issues at most one invoice per order.
type Service struct {
	store  *Store
	seq    *sequence.Generator
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store *Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		seq:    sequence.NewGenerator("INV", store),
		logger: logger,
		now:    time.Now,
	}
}

// Issue returns the existing invoice for req.OrderID if there is one,
// otherwise creates it. created reports which case happened.
func (s *Service) Issue(ctx context.Context, req domain.CreateInvoiceRequest) (inv *domain.Invoice, created bool, err error) {
	if err := validate(req); err != nil {
		return nil, false, err
	}

	existing, err := s.store.FindByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, false, fmt.Errorf("find invoice for order %d: %w", req.OrderID, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	inv = &domain.Invoice{
		OrderID:       req.OrderID,
		OrderNumber:   req.OrderNumber,
		CustomerEmail: req.CustomerEmail,
		Amount:        domain.NewMoney(req.Amount.Decimal),
		Currency:      strings.ToUpper(req.Currency),
		Status:        domain.InvoiceStatusIssued,
		CreatedAt:     s.now().UTC(),
	}

	err = s.seq.Reserve(ctx, func(ctx context.Context, number string) error {
		inv.InvoiceNumber = number
		err := s.store.Create(ctx, inv)
		if !isDuplicate(err) {
			return err
		}

		// Either the order already got an invoice or the number is taken.
		existing, findErr := s.store.FindByOrderID(ctx, req.OrderID)
		if findErr != nil {
			return findErr
		}
		if existing != nil {
			inv = existing
			return errInvoiceExists
		}
		return sequence.ErrDuplicate
	})
	if errors.Is(err, errInvoiceExists) {
		return inv, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create invoice for order %d: %w", req.OrderID, err)
	}

	s.logger.InfoContext(ctx, "invoice issued",
		"invoice_number", inv.InvoiceNumber,
		"order_id", inv.OrderID,
		"amount", inv.Amount.StringFixed(2),
		"currency", inv.Currency,
	)
	return inv, true, nil
}

var errInvoiceExists = errors.New("invoice already exists for order")

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func validate(req domain.CreateInvoiceRequest) error {
	switch {
	case req.OrderID <= 0:
		return domain.ValidationError("orderId is required")
	case req.OrderNumber == "":
		return domain.ValidationError("orderNumber is required")
	case req.Amount.IsNegative():
		return domain.ValidationError("amount must not be negative")
	case len(req.Currency) != 3:
		return domain.ValidationError("currency must be a 3-letter code")
	}
	return nil
}
