package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
	"github.com/joao-fontenele/orderflow-platform/internal/idempotency"
	"github.com/joao-fontenele/orderflow-platform/internal/sequence"
	"github.com/joao-fontenele/orderflow-platform/internal/telemetry"
)

var (
	tracer     = otel.Tracer("orders/workflow")
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
)

const (
	reasonCreated   = "created"
	reasonConfirmed = "confirmed"
	reasonCancelled = "cancelled"
	reasonManual    = "manual update"

	defaultPageSize   = 20
	maxPageSize       = 100
	maxIdempotencyKey = 255
)

type PricingResolver interface {
	Resolve(ctx context.Context, productID string) (*domain.Product, error)
}

type Invoicer interface {
	CreateInvoice(ctx context.Context, order *domain.Order) (*domain.Invoice, error)
}

type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Tracker interface {
	Track(ctx context.Context, event string, orderID int64) error
}

type Config struct {
	// FallbackPrice is used for items whose price could not be resolved.
	FallbackPrice   decimal.Decimal
	DefaultCurrency string
	// StrictPricing rejects orders instead of using FallbackPrice.
	StrictPricing bool
	EffectTimeout time.Duration
}

type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type CreateRequest struct {
	CustomerEmail  string        `json:"customerEmail"`
	Items          []ItemRequest `json:"items"`
	IdempotencyKey string        `json:"-"`
}

// UpdateRequest is a partial update; nil fields are left unchanged.
type UpdateRequest struct {
	CustomerEmail *string             `json:"customerEmail"`
	Status        *domain.OrderStatus `json:"status"`
	Items         []ItemRequest       `json:"items"`
}

// Workflow coordinates order persistence with pricing, billing,
// notifications and analytics. Billing is the only downstream call that can
// fail a request; notifications and analytics run in the background.
type Workflow struct {
	store     Store
	pricing   PricingResolver
	invoicer  Invoicer
	publisher Publisher
	tracker   Tracker
	cfg       Config
	logger    *slog.Logger

	seq         *sequence.Generator
	guard       idempotency.Guard[*domain.Order]
	effects     sync.WaitGroup
	created     metric.Int64Counter
	transitions metric.Int64Counter
	now         func() time.Time
}

// NewWorkflow wires a workflow. publisher and tracker may be nil, in which
// case the corresponding side effects are skipped.
func NewWorkflow(store Store, pricing PricingResolver, invoicer Invoicer, publisher Publisher, tracker Tracker, cfg Config, logger *slog.Logger) *Workflow {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	if cfg.EffectTimeout <= 0 {
		cfg.EffectTimeout = 5 * time.Second
	}

	meter := otel.Meter("orders")
	created, _ := meter.Int64Counter("orders_created",
		metric.WithDescription("Orders created"),
	)
	transitions, _ := meter.Int64Counter("order_transitions",
		metric.WithDescription("Order status transitions by target status"),
	)

	return &Workflow{
		store:       store,
		pricing:     pricing,
		invoicer:    invoicer,
		publisher:   publisher,
		tracker:     tracker,
		cfg:         cfg,
		logger:      logger,
		seq:         sequence.NewGenerator("ORD", store),
		created:     created,
		transitions: transitions,
		now:         time.Now,
	}
}

// timestamp returns the current time at the precision postgres keeps, so a
// freshly created order and its later reads render the same.
func (w *Workflow) timestamp() time.Time {
	return w.now().UTC().Truncate(time.Microsecond)
}

// Close waits for in-flight background effects.
func (w *Workflow) Close() {
	w.effects.Wait()
}

func (w *Workflow) Create(ctx context.Context, req CreateRequest) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Create")
	defer func() { endSpan(span, err) }()

	email := idempotency.NormalizeEmail(req.CustomerEmail)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return w.create(ctx, email, req.Items, nil)
	}
	if len(key) > maxIdempotencyKey {
		return nil, domain.ValidationError("Idempotency-Key must be at most %d characters", maxIdempotencyKey)
	}
	span.SetAttributes(attribute.String("idempotency.key", key))

	hash := idempotency.RequestHash(email, hashItems(req.Items))

	return w.guard.Do(key, hash, func() (*domain.Order, error) {
		if existing, err := w.replay(ctx, key, hash); existing != nil || err != nil {
			return existing, err
		}

		order, err := w.create(ctx, email, req.Items, &domain.IdempotencyRecord{Key: key, RequestHash: hash})
		if errors.Is(err, idempotency.ErrKeyExists) {
			// Another replica won the race for this key.
			if existing, rerr := w.replay(ctx, key, hash); existing != nil || rerr != nil {
				return existing, rerr
			}
		}
		return order, err
	})
}

// replay returns the order stored under key, or nil when the key is unused.
func (w *Workflow) replay(ctx context.Context, key, hash string) (*domain.Order, error) {
	rec, err := w.store.FindIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("find idempotency record: %w", err)
	}
	if rec == nil {
		return nil, nil
	}

	if rec.RequestHash != hash {
		return nil, domain.ConflictError("idempotency key reuse with different request")
	}

	order, err := w.store.GetByID(ctx, rec.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", rec.OrderID, err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %d recorded for idempotency key is missing", rec.OrderID)
	}

	w.logger.InfoContext(ctx, "idempotent request replayed", "order_id", order.ID, "idempotency_key", key)
	return order, nil
}

func (w *Workflow) create(ctx context.Context, email string, reqItems []ItemRequest, idem *domain.IdempotencyRecord) (*domain.Order, error) {
	items, currency, err := w.price(ctx, reqItems)
	if err != nil {
		return nil, err
	}

	now := w.timestamp()
	order := &domain.Order{
		CustomerEmail: email,
		Status:        domain.OrderStatusNew,
		TotalAmount:   domain.Total(items),
		Currency:      currency,
		CreatedAt:     now,
		UpdatedAt:     now,
		Items:         items,
	}
	if idem != nil {
		idem.CreatedAt = now
	}

	err = w.seq.Reserve(ctx, func(ctx context.Context, number string) error {
		order.OrderNumber = number
		return w.store.Create(ctx, order, idem, domain.StatusHistoryEntry{
			NewStatus: domain.OrderStatusNew,
			Reason:    reasonCreated,
			ChangedAt: now,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	w.created.Add(ctx, 1)
	w.logger.InfoContext(ctx, "order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"total", order.TotalAmount.StringFixed(2),
		"currency", order.Currency,
	)
	w.track(ctx, domain.EventOrderCreated, order.ID)

	return order, nil
}

func (w *Workflow) price(ctx context.Context, reqItems []ItemRequest) ([]domain.OrderItem, string, error) {
	items := make([]domain.OrderItem, 0, len(reqItems))
	currency := ""

	for _, ri := range reqItems {
		item, itemCurrency, err := w.priceItem(ctx, ri)
		if err != nil {
			return nil, "", err
		}

		if itemCurrency != "" {
			if currency == "" {
				currency = itemCurrency
			} else if currency != itemCurrency {
				return nil, "", domain.ValidationError("all items must share one currency, got %s and %s", currency, itemCurrency)
			}
		}

		items = append(items, item)
	}

	if currency == "" {
		currency = w.cfg.DefaultCurrency
	}

	return items, currency, nil
}

// priceItem resolves one item. An empty currency means the price is a
// fallback and does not constrain the order currency.
func (w *Workflow) priceItem(ctx context.Context, ri ItemRequest) (domain.OrderItem, string, error) {
	productID := strings.TrimSpace(ri.ProductID)
	item := domain.OrderItem{ProductID: productID, Quantity: ri.Quantity}
	currency := ""
	var unitPrice decimal.Decimal

	product, err := w.pricing.Resolve(ctx, productID)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		return item, "", domain.ValidationError("product %s not found", productID)
	case err != nil:
		if w.cfg.StrictPricing {
			return item, "", domain.UpstreamError(err, "pricing unavailable for product %s", productID)
		}
		telemetry.RecordDegradedRead(ctx, "pricing")
		w.logger.WarnContext(ctx, "pricing unavailable, using fallback price",
			"error", err,
			"product_id", productID,
			"fallback_price", w.cfg.FallbackPrice.StringFixed(2),
		)
		item.ProductName = productID
		unitPrice = w.cfg.FallbackPrice
	case !product.Active:
		return item, "", domain.ValidationError("product %s is not available", productID)
	default:
		item.ProductName = product.Name
		unitPrice = product.Price.Decimal
		currency = strings.ToUpper(strings.TrimSpace(product.Currency))
	}

	item.UnitPrice = domain.NewMoney(unitPrice)
	item.LineTotal = domain.NewMoney(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	return item, currency, nil
}

func (w *Workflow) Get(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := w.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	if order == nil {
		return nil, domain.NotFoundError("order %d not found", id)
	}
	return order, nil
}

func (w *Workflow) List(ctx context.Context, filter ListFilter) (*domain.OrderPage, error) {
	if filter.Page < 0 {
		return nil, domain.ValidationError("page must be >= 0")
	}
	if filter.Size <= 0 {
		filter.Size = defaultPageSize
	}
	if filter.Size > maxPageSize {
		filter.Size = maxPageSize
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.ValidationError("unknown status %q", filter.Status)
	}
	filter.CustomerEmail = idempotency.NormalizeEmail(filter.CustomerEmail)

	orders, total, err := w.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return &domain.OrderPage{
		Content:       orders,
		Page:          filter.Page,
		Size:          filter.Size,
		TotalElements: total,
		TotalPages:    (total + filter.Size - 1) / filter.Size,
	}, nil
}

func (w *Workflow) History(ctx context.Context, id int64) ([]domain.StatusHistoryEntry, error) {
	if _, err := w.Get(ctx, id); err != nil {
		return nil, err
	}

	entries, err := w.store.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get history for order %d: %w", id, err)
	}
	return entries, nil
}

// Confirm moves a NEW order to CONFIRMED and invoices it. If billing fails
// the order stays CONFIRMED, the failure is recorded in its history and an
// upstream error is returned.
func (w *Workflow) Confirm(ctx context.Context, id int64) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Confirm", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, err) }()

	order, err = w.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if order.Status != domain.OrderStatusNew {
		return nil, domain.StateError("order %s cannot be confirmed from status %s", order.OrderNumber, order.Status)
	}

	if err := w.transition(ctx, order, domain.OrderStatusConfirmed, reasonConfirmed); err != nil {
		return nil, err
	}

	inv, err := w.invoicer.CreateInvoice(ctx, order)
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to create invoice", "error", err, "order_id", order.ID)
		w.note(ctx, order, "invoice creation failed: "+err.Error())
		return nil, domain.UpstreamError(err, "billing unavailable for order %s", order.OrderNumber)
	}

	w.logger.InfoContext(ctx, "order invoiced", "order_id", order.ID, "invoice_number", inv.InvoiceNumber)
	w.notify(ctx, order, domain.NotificationOrderConfirmed, "")
	w.track(ctx, domain.EventOrderConfirmed, order.ID)

	return order, nil
}

// Cancel moves a NEW order to CANCELLED. Cancelling a cancelled order
// returns it unchanged.
func (w *Workflow) Cancel(ctx context.Context, id int64, reason string) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Cancel", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, err) }()

	order, err = w.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case domain.OrderStatusCancelled:
		return order, nil
	case domain.OrderStatusNew:
	default:
		return nil, domain.StateError("order %s cannot be cancelled from status %s", order.OrderNumber, order.Status)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = reasonCancelled
	}

	if err := w.transition(ctx, order, domain.OrderStatusCancelled, reason); err != nil {
		if domain.KindOf(err) == domain.KindState {
			if current, gerr := w.store.GetByID(ctx, id); gerr == nil && current != nil && current.Status == domain.OrderStatusCancelled {
				return current, nil
			}
		}
		return nil, err
	}

	w.notify(ctx, order, domain.NotificationOrderCancelled, reason)
	w.track(ctx, domain.EventOrderCancelled, order.ID)

	return order, nil
}

// Update applies a partial update. Email and items can only change while
// the order is NEW; items are re-priced. A status change is recorded with
// its own history entry and triggers no downstream calls.
func (w *Workflow) Update(ctx context.Context, id int64, req UpdateRequest) (order *domain.Order, err error) {
	ctx, span := tracer.Start(ctx, "orders.Update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, err) }()

	order, err = w.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.CustomerEmail != nil || req.Items != nil {
		if order.Status != domain.OrderStatusNew {
			return nil, domain.StateError("order %s cannot be modified in status %s", order.OrderNumber, order.Status)
		}

		if req.CustomerEmail != nil {
			email := idempotency.NormalizeEmail(*req.CustomerEmail)
			if err := validateEmail(email); err != nil {
				return nil, err
			}
			order.CustomerEmail = email
		}

		if req.Items != nil {
			if err := validateItems(req.Items); err != nil {
				return nil, err
			}
			items, currency, err := w.price(ctx, req.Items)
			if err != nil {
				return nil, err
			}
			order.Items = items
			order.Currency = currency
			order.TotalAmount = domain.Total(items)
		}

		order.UpdatedAt = w.timestamp()
		ok, err := w.store.UpdateDetails(ctx, order)
		if err != nil {
			return nil, fmt.Errorf("update order %d: %w", id, err)
		}
		if !ok {
			return nil, domain.StateError("order %s is no longer NEW", order.OrderNumber)
		}
	}

	if req.Status != nil && *req.Status != order.Status {
		next := *req.Status
		if !next.IsValid() {
			return nil, domain.ValidationError("unknown status %q", next)
		}
		if !order.Status.CanTransitionTo(next) {
			return nil, domain.StateError("order %s cannot move from %s to %s", order.OrderNumber, order.Status, next)
		}
		if err := w.transition(ctx, order, next, reasonManual); err != nil {
			return nil, err
		}
	}

	return w.Get(ctx, id)
}

// transition applies a compare-and-set status change on order and records
// it in the status history.
func (w *Workflow) transition(ctx context.Context, order *domain.Order, to domain.OrderStatus, reason string) error {
	from := order.Status
	now := w.timestamp()

	ok, err := w.store.TransitionStatus(ctx, domain.StatusHistoryEntry{
		OrderID:   order.ID,
		OldStatus: &from,
		NewStatus: to,
		Reason:    reason,
		ChangedAt: now,
	})
	if err != nil {
		return fmt.Errorf("transition order %d to %s: %w", order.ID, to, err)
	}

	if !ok {
		current, err := w.store.GetByID(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("get order %d: %w", order.ID, err)
		}
		if current == nil {
			return domain.NotFoundError("order %d not found", order.ID)
		}
		return domain.StateError("order %s is %s, expected %s", order.OrderNumber, current.Status, from)
	}

	order.Status = to
	order.UpdatedAt = now

	w.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(to))))
	w.logger.InfoContext(ctx, "order status changed",
		"order_id", order.ID,
		"from", from,
		"to", to,
		"reason", reason,
	)
	return nil
}

// note appends a history entry that does not change the status.
func (w *Workflow) note(ctx context.Context, order *domain.Order, reason string) {
	status := order.Status
	err := w.store.AppendHistory(ctx, domain.StatusHistoryEntry{
		OrderID:   order.ID,
		OldStatus: &status,
		NewStatus: status,
		Reason:    reason,
		ChangedAt: w.timestamp(),
	})
	if err != nil {
		w.logger.ErrorContext(ctx, "failed to append history note", "error", err, "order_id", order.ID)
	}
}

func (w *Workflow) notify(ctx context.Context, order *domain.Order, typ domain.NotificationType, reason string) {
	if w.publisher == nil {
		return
	}

	event := domain.NotificationEvent{
		Type:          typ,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		TotalAmount:   order.TotalAmount.StringFixed(2),
		Currency:      order.Currency,
		Reason:        reason,
		Timestamp:     w.timestamp(),
	}
	key := strconv.FormatInt(order.ID, 10)

	w.background(ctx, "notify", func(ctx context.Context) error {
		return w.publisher.Publish(ctx, key, event)
	})
}

func (w *Workflow) track(ctx context.Context, event string, orderID int64) {
	if w.tracker == nil {
		return
	}

	w.background(ctx, "track", func(ctx context.Context) error {
		return w.tracker.Track(ctx, event, orderID)
	})
}

// background runs fn detached from the request's cancellation but keeps its
// trace context. Failures are logged and never reach the caller.
func (w *Workflow) background(ctx context.Context, effect string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)

	w.effects.Add(1)
	go func() {
		defer w.effects.Done()

		ctx, cancel := context.WithTimeout(ctx, w.cfg.EffectTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			w.logger.WarnContext(ctx, "background effect failed", "effect", effect, "error", err)
		}
	}()
}

func validateEmail(email string) error {
	if email == "" {
		return domain.ValidationError("customerEmail is required")
	}
	if len(email) > 254 || !emailRegex.MatchString(email) {
		return domain.ValidationError("customerEmail %q is not a valid email address", email)
	}
	return nil
}

func validateItems(items []ItemRequest) error {
	if len(items) == 0 {
		return domain.ValidationError("at least one item is required")
	}
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return domain.ValidationError("items[%d].productId is required", i)
		}
		if item.Quantity <= 0 {
			return domain.ValidationError("items[%d].quantity must be greater than zero", i)
		}
	}
	return nil
}

func hashItems(items []ItemRequest) []idempotency.Item {
	out := make([]idempotency.Item, len(items))
	for i, item := range items {
		out[i] = idempotency.Item{ProductID: strings.TrimSpace(item.ProductID), Quantity: item.Quantity}
	}
	return out
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
