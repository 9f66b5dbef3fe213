package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
	"github.com/joao-fontenele/orderflow-platform/internal/idempotency"
	"github.com/joao-fontenele/orderflow-platform/internal/sequence"
)

const (
	uniqueViolation              = "23505"
	orderNumberConstraint        = "orders_order_number_key"
	idempotencyRecordsConstraint = "idempotency_records_pkey"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order, idem *domain.IdempotencyRecord, created domain.StatusHistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (order_number, customer_email, status, total_amount, currency, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, order.OrderNumber, order.CustomerEmail, order.Status, order.TotalAmount, order.Currency, order.CreatedAt, order.UpdatedAt).Scan(&order.ID)
	if err != nil {
		return translateError(err)
	}

	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return err
	}

	created.OrderID = order.ID
	if err := insertHistory(ctx, tx, created); err != nil {
		return err
	}

	if idem != nil {
		idem.OrderID = order.ID
		_, err = tx.ExecContext(ctx, `
			INSERT INTO idempotency_records (key, request_hash, order_id, created_at)
			VALUES ($1, $2, $3, $4)
		`, idem.Key, idem.RequestHash, idem.OrderID, idem.CreatedAt)
		if err != nil {
			return translateError(err)
		}
	}

	return translateError(tx.Commit())
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_number, customer_email, status, total_amount, currency, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.OrderNumber, &order.CustomerEmail, &order.Status, &order.TotalAmount, &order.Currency, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, unit_price, quantity, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity, &item.LineTotal); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) FindIdempotency(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{}

	err := r.db.QueryRowContext(ctx, `
		SELECT key, request_hash, order_id, created_at
		FROM idempotency_records
		WHERE key = $1
	`, key).Scan(&rec.Key, &rec.RequestHash, &rec.OrderID, &rec.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return rec, nil
}

func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerEmail != "" {
		args = append(args, filter.CustomerEmail)
		conds = append(conds, fmt.Sprintf("customer_email = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Size, filter.Page*filter.Size)
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, order_number, customer_email, status, total_amount, currency, created_at, updated_at
		FROM orders
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.OrderNumber, &order.CustomerEmail, &order.Status, &order.TotalAmount, &order.Currency, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, 0, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, total, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, product_name, unit_price, quantity, line_total
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID int64
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.ProductName, &item.UnitPrice, &item.Quantity, &item.LineTotal); err != nil {
			return nil, 0, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, 0, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, total, nil
}

func (r *OrderRepository) TransitionStatus(ctx context.Context, entry domain.StatusHistoryEntry) (bool, error) {
	if entry.OldStatus == nil {
		return false, errors.New("transition requires a previous status")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, entry.NewStatus, entry.ChangedAt, entry.OrderID, *entry.OldStatus)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		return false, nil
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *OrderRepository) UpdateDetails(ctx context.Context, order *domain.Order) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET customer_email = $1, total_amount = $2, currency = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`, order.CustomerEmail, order.TotalAmount, order.Currency, order.UpdatedAt, order.ID, domain.OrderStatusNew)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	if rowsAffected == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return false, err
	}

	if err := insertItems(ctx, tx, order.ID, order.Items); err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (r *OrderRepository) AppendHistory(ctx context.Context, entry domain.StatusHistoryEntry) error {
	return insertHistory(ctx, r.db, entry)
}

func (r *OrderRepository) History(ctx context.Context, orderID int64) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, old_status, new_status, reason, changed_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY changed_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	entries := []domain.StatusHistoryEntry{}
	for rows.Next() {
		var entry domain.StatusHistoryEntry
		var old sql.NullString
		if err := rows.Scan(&entry.ID, &entry.OrderID, &old, &entry.NewStatus, &entry.Reason, &entry.ChangedAt); err != nil {
			return nil, err
		}
		if old.Valid {
			status := domain.OrderStatus(old.String)
			entry.OldStatus = &status
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *OrderRepository) MaxNumber(ctx context.Context, prefix string) (string, error) {
	var number string
	err := r.db.QueryRowContext(ctx, `
		SELECT order_number
		FROM orders
		WHERE order_number LIKE $1
		ORDER BY LENGTH(order_number) DESC, order_number DESC
		LIMIT 1
	`, prefix+"%").Scan(&number)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return number, err
}

func (r *OrderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertItems(ctx context.Context, tx execer, orderID int64, items []domain.OrderItem) error {
	for i, item := range items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, product_name, unit_price, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, orderID, i, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity, item.LineTotal)
		if err != nil {
			return err
		}
	}
	return nil
}

func insertHistory(ctx context.Context, tx execer, entry domain.StatusHistoryEntry) error {
	var old any
	if entry.OldStatus != nil {
		old = string(*entry.OldStatus)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, old_status, new_status, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.OrderID, old, entry.NewStatus, entry.Reason, entry.ChangedAt.UTC().Truncate(time.Microsecond))
	return err
}

// translateError maps unique violations to the sentinels the workflow
// retries or resolves on.
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}

	switch pqErr.Constraint {
	case orderNumberConstraint:
		return fmt.Errorf("%w: %v", sequence.ErrDuplicate, err)
	case idempotencyRecordsConstraint:
		return fmt.Errorf("%w: %v", idempotency.ErrKeyExists, err)
	}
	return err
}
