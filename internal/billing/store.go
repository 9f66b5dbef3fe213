package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
)

type invoiceRecord struct {
	ID            int64           `gorm:"primaryKey;autoIncrement"`
	InvoiceNumber string          `gorm:"size:32;uniqueIndex;not null"`
	OrderID       int64           `gorm:"uniqueIndex;not null"`
	OrderNumber   string          `gorm:"size:32;not null"`
	CustomerEmail string          `gorm:"size:255;not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency      string          `gorm:"size:3;not null"`
	Status        string          `gorm:"size:16;not null"`
	CreatedAt     time.Time
}

func (invoiceRecord) TableName() string { return "invoices" }

func (r invoiceRecord) toDomain() domain.Invoice {
	return domain.Invoice{
		ID:            r.ID,
		InvoiceNumber: r.InvoiceNumber,
		OrderID:       r.OrderID,
		OrderNumber:   r.OrderNumber,
		CustomerEmail: r.CustomerEmail,
		Amount:        domain.NewMoney(r.Amount),
		Currency:      r.Currency,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
	}
}

// Store persists invoices with gorm. Open the *gorm.DB with
// TranslateError enabled so unique violations surface as
// gorm.ErrDuplicatedKey.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&invoiceRecord{})
}

func (s *Store) Create(ctx context.Context, inv *domain.Invoice) error {
	rec := invoiceRecord{
		InvoiceNumber: inv.InvoiceNumber,
		OrderID:       inv.OrderID,
		OrderNumber:   inv.OrderNumber,
		CustomerEmail: inv.CustomerEmail,
		Amount:        inv.Amount.Decimal,
		Currency:      inv.Currency,
		Status:        inv.Status,
		CreatedAt:     inv.CreatedAt,
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}

	inv.ID = rec.ID
	return nil
}

func (s *Store) FindByID(ctx context.Context, id int64) (*domain.Invoice, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *Store) FindByOrderID(ctx context.Context, orderID int64) (*domain.Invoice, error) {
	return s.first(ctx, "order_id = ?", orderID)
}

func (s *Store) List(ctx context.Context) ([]domain.Invoice, error) {
	var recs []invoiceRecord
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&recs).Error; err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(recs))
	for _, rec := range recs {
		invoices = append(invoices, rec.toDomain())
	}
	return invoices, nil
}

// MaxNumber implements sequence.Source.
func (s *Store) MaxNumber(ctx context.Context, prefix string) (string, error) {
	var rec invoiceRecord
	err := s.db.WithContext(ctx).
		Where("invoice_number LIKE ?", prefix+"%").
		Order("LENGTH(invoice_number) DESC, invoice_number DESC").
		Limit(1).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return rec.InvoiceNumber, nil
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) first(ctx context.Context, query string, arg any) (*domain.Invoice, error) {
	var rec invoiceRecord
	err := s.db.WithContext(ctx).Where(query, arg).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	inv := rec.toDomain()
	return &inv, nil
}
