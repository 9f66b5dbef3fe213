package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
)

type fakePricing struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	down     map[string]bool
}

func (f *fakePricing) Resolve(_ context.Context, productID string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.down[productID] {
		return nil, errors.New("catalog unavailable")
	}
	p, ok := f.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	out := *p
	return &out, nil
}

type fakeInvoicer struct {
	mu     sync.Mutex
	err    error
	orders []int64
}

func (f *fakeInvoicer) CreateInvoice(_ context.Context, order *domain.Order) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	f.orders = append(f.orders, order.ID)
	return &domain.Invoice{
		ID:            int64(len(f.orders)),
		InvoiceNumber: fmt.Sprintf("INV-2026-%05d", len(f.orders)),
		OrderID:       order.ID,
		Amount:        order.TotalAmount,
		Currency:      order.Currency,
	}, nil
}

func (f *fakeInvoicer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
}

func (f *fakePublisher) Publish(_ context.Context, _ string, event any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event.(domain.NotificationEvent))
	return nil
}

type fakeTracker struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeTracker) Track(_ context.Context, event string, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeTracker) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

type fixture struct {
	workflow  *Workflow
	store     *MemoryStore
	pricing   *fakePricing
	invoicer  *fakeInvoicer
	publisher *fakePublisher
	tracker   *fakeTracker
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	f := &fixture{
		store: NewMemoryStore(),
		pricing: &fakePricing{
			products: map[string]*domain.Product{
				"P1": {ID: "P1", Name: "Widget", Price: domain.NewMoney(decimal.RequireFromString("10.00")), Currency: "USD", Active: true},
				"P2": {ID: "P2", Name: "Gadget", Price: domain.NewMoney(decimal.RequireFromString("2.50")), Currency: "USD", Active: true},
				"E1": {ID: "E1", Name: "Euro Widget", Price: domain.NewMoney(decimal.RequireFromString("7.00")), Currency: "EUR", Active: true},
				"X1": {ID: "X1", Name: "Retired", Price: domain.NewMoney(decimal.RequireFromString("3.00")), Currency: "USD", Active: false},
			},
			down: map[string]bool{},
		},
		invoicer:  &fakeInvoicer{},
		publisher: &fakePublisher{},
		tracker:   &fakeTracker{},
	}
	if cfg.FallbackPrice.IsZero() {
		cfg.FallbackPrice = decimal.RequireFromString("1.00")
	}

	f.workflow = NewWorkflow(f.store, f.pricing, f.invoicer, f.publisher, f.tracker, cfg,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(f.workflow.Close)
	return f
}

func buyerRequest(key string) CreateRequest {
	return CreateRequest{
		CustomerEmail:  "buyer@test.com",
		Items:          []ItemRequest{{ProductID: "P1", Quantity: 2}},
		IdempotencyKey: key,
	}
}

func mustCreate(t *testing.T, w *Workflow, req CreateRequest) *domain.Order {
	t.Helper()
	order, err := w.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return order
}

func assertKind(t *testing.T, err error, want domain.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := domain.KindOf(err); got != want {
		t.Fatalf("expected %s error, got %s (%v)", want, got, err)
	}
}

var orderNumberPattern = regexp.MustCompile(`^ORD-\d{4}-\d{5}$`)

func TestWorkflow_EndToEnd(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	order := mustCreate(t, f.workflow, buyerRequest(""))

	if order.Status != domain.OrderStatusNew {
		t.Errorf("expected NEW, got %s", order.Status)
	}
	if !order.TotalAmount.Equal(decimal.RequireFromString("20.00")) || order.Currency != "USD" {
		t.Errorf("expected 20.00 USD, got %s %s", order.TotalAmount, order.Currency)
	}
	if !orderNumberPattern.MatchString(order.OrderNumber) {
		t.Errorf("unexpected order number %q", order.OrderNumber)
	}
	if order.Items[0].ProductName != "Widget" || !order.Items[0].LineTotal.Equal(decimal.RequireFromString("20")) {
		t.Errorf("unexpected item: %+v", order.Items[0])
	}

	confirmed, err := f.workflow.Confirm(ctx, order.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected CONFIRMED, got %s", confirmed.Status)
	}

	f.workflow.Close()

	if got := f.invoicer.count(); got != 1 {
		t.Errorf("expected exactly one invoice, got %d", got)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].Type != domain.NotificationOrderConfirmed {
		t.Errorf("expected one confirmation notification, got %+v", f.publisher.events)
	}
	if f.publisher.events[0].TotalAmount != "20.00" {
		t.Errorf("expected notification amount 20.00, got %s", f.publisher.events[0].TotalAmount)
	}
	if f.tracker.count(domain.EventOrderCreated) != 1 || f.tracker.count(domain.EventOrderConfirmed) != 1 {
		t.Errorf("unexpected analytics events: %v", f.tracker.events)
	}

	history, err := f.workflow.History(ctx, order.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].OldStatus != nil || history[0].NewStatus != domain.OrderStatusNew || history[0].Reason != "created" {
		t.Errorf("unexpected creation entry: %+v", history[0])
	}
	if *history[1].OldStatus != domain.OrderStatusNew || history[1].NewStatus != domain.OrderStatusConfirmed || history[1].Reason != "confirmed" {
		t.Errorf("unexpected confirmation entry: %+v", history[1])
	}
}

func TestWorkflow_CreateIdempotency(t *testing.T) {
	t.Run("same key and request returns the stored order", func(t *testing.T) {
		f := newFixture(t, Config{})

		first := mustCreate(t, f.workflow, buyerRequest("key-1"))
		second := mustCreate(t, f.workflow, buyerRequest("key-1"))

		if first.ID != second.ID || first.OrderNumber != second.OrderNumber {
			t.Errorf("expected the same order, got %d and %d", first.ID, second.ID)
		}

		f.workflow.Close()
		if got := f.tracker.count(domain.EventOrderCreated); got != 1 {
			t.Errorf("expected one created event, got %d", got)
		}
		history, _ := f.store.History(context.Background(), first.ID)
		if len(history) != 1 {
			t.Errorf("expected 1 history entry, got %d", len(history))
		}
	})

	t.Run("replay renders the same timestamps", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.workflow.now = func() time.Time {
			return time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC)
		}

		first := mustCreate(t, f.workflow, buyerRequest("key-time"))
		second := mustCreate(t, f.workflow, buyerRequest("key-time"))

		if first.CreatedAt.Nanosecond() != 123456000 {
			t.Errorf("expected microsecond precision, got %s", first.CreatedAt.Format(time.RFC3339Nano))
		}

		firstJSON, _ := json.Marshal(first)
		secondJSON, _ := json.Marshal(second)
		if string(firstJSON) != string(secondJSON) {
			t.Errorf("expected identical bodies:\n%s\n%s", firstJSON, secondJSON)
		}
	})

	t.Run("hash ignores email case and item order", func(t *testing.T) {
		f := newFixture(t, Config{})

		first := mustCreate(t, f.workflow, CreateRequest{
			CustomerEmail:  "buyer@test.com",
			Items:          []ItemRequest{{ProductID: "P1", Quantity: 2}, {ProductID: "P2", Quantity: 1}},
			IdempotencyKey: "key-2",
		})
		second := mustCreate(t, f.workflow, CreateRequest{
			CustomerEmail:  "  Buyer@Test.COM ",
			Items:          []ItemRequest{{ProductID: "P2", Quantity: 1}, {ProductID: "P1", Quantity: 2}},
			IdempotencyKey: "key-2",
		})

		if first.ID != second.ID {
			t.Errorf("expected the same order, got %d and %d", first.ID, second.ID)
		}
	})

	t.Run("same key with different request conflicts", func(t *testing.T) {
		f := newFixture(t, Config{})
		mustCreate(t, f.workflow, buyerRequest("key-3"))

		req := buyerRequest("key-3")
		req.Items[0].Quantity = 3
		_, err := f.workflow.Create(context.Background(), req)
		assertKind(t, err, domain.KindConflict)
	})

	t.Run("concurrent requests with one key create one order", func(t *testing.T) {
		f := newFixture(t, Config{})

		const n = 20
		ids := make([]int64, n)
		errs := make([]error, n)

		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				order, err := f.workflow.Create(context.Background(), buyerRequest("key-4"))
				errs[i] = err
				if order != nil {
					ids[i] = order.ID
				}
			}(i)
		}
		wg.Wait()

		for i := range n {
			if errs[i] != nil {
				t.Fatalf("request %d failed: %v", i, errs[i])
			}
			if ids[i] != ids[0] {
				t.Errorf("request %d got order %d, expected %d", i, ids[i], ids[0])
			}
		}

		_, total, _ := f.store.List(context.Background(), ListFilter{Size: 100})
		if total != 1 {
			t.Errorf("expected 1 stored order, got %d", total)
		}
	})

	t.Run("overlong key is rejected", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.workflow.Create(context.Background(), buyerRequest(strings.Repeat("k", 256)))
		assertKind(t, err, domain.KindValidation)
	})
}

func TestWorkflow_CreateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing email", CreateRequest{Items: []ItemRequest{{ProductID: "P1", Quantity: 1}}}},
		{"invalid email", CreateRequest{CustomerEmail: "not-an-email", Items: []ItemRequest{{ProductID: "P1", Quantity: 1}}}},
		{"no items", CreateRequest{CustomerEmail: "buyer@test.com"}},
		{"blank product", CreateRequest{CustomerEmail: "buyer@test.com", Items: []ItemRequest{{ProductID: " ", Quantity: 1}}}},
		{"zero quantity", CreateRequest{CustomerEmail: "buyer@test.com", Items: []ItemRequest{{ProductID: "P1", Quantity: 0}}}},
		{"unknown product", CreateRequest{CustomerEmail: "buyer@test.com", Items: []ItemRequest{{ProductID: "NOPE", Quantity: 1}}}},
		{"inactive product", CreateRequest{CustomerEmail: "buyer@test.com", Items: []ItemRequest{{ProductID: "X1", Quantity: 1}}}},
		{"mixed currencies", CreateRequest{CustomerEmail: "buyer@test.com", Items: []ItemRequest{{ProductID: "P1", Quantity: 1}, {ProductID: "E1", Quantity: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})

			_, err := f.workflow.Create(context.Background(), tt.req)
			assertKind(t, err, domain.KindValidation)

			_, total, _ := f.store.List(context.Background(), ListFilter{Size: 10})
			if total != 0 {
				t.Errorf("expected nothing stored, got %d orders", total)
			}
		})
	}
}

func TestWorkflow_CreatePricingFallback(t *testing.T) {
	t.Run("unavailable pricing uses the fallback price", func(t *testing.T) {
		f := newFixture(t, Config{FallbackPrice: decimal.RequireFromString("1.00")})
		f.pricing.down["P9"] = true

		order := mustCreate(t, f.workflow, CreateRequest{
			CustomerEmail: "buyer@test.com",
			Items:         []ItemRequest{{ProductID: "P9", Quantity: 3}},
		})

		item := order.Items[0]
		if item.ProductName != "P9" || !item.UnitPrice.Equal(decimal.RequireFromString("1.00")) {
			t.Errorf("unexpected fallback item: %+v", item)
		}
		if !order.TotalAmount.Equal(decimal.RequireFromString("3.00")) || order.Currency != "USD" {
			t.Errorf("expected 3.00 USD, got %s %s", order.TotalAmount, order.Currency)
		}
	})

	t.Run("fallback items do not constrain the currency", func(t *testing.T) {
		f := newFixture(t, Config{DefaultCurrency: "USD"})
		f.pricing.down["P9"] = true

		order := mustCreate(t, f.workflow, CreateRequest{
			CustomerEmail: "buyer@test.com",
			Items:         []ItemRequest{{ProductID: "P9", Quantity: 1}, {ProductID: "E1", Quantity: 1}},
		})

		if order.Currency != "EUR" {
			t.Errorf("expected EUR, got %s", order.Currency)
		}
		if !order.TotalAmount.Equal(decimal.RequireFromString("8.00")) {
			t.Errorf("expected 8.00, got %s", order.TotalAmount)
		}
	})

	t.Run("strict pricing surfaces the failure", func(t *testing.T) {
		f := newFixture(t, Config{StrictPricing: true})
		f.pricing.down["P1"] = true

		_, err := f.workflow.Create(context.Background(), buyerRequest(""))
		assertKind(t, err, domain.KindUpstream)
	})
}

func TestWorkflow_Confirm(t *testing.T) {
	t.Run("billing failure keeps the order confirmed and returns upstream error", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.invoicer.err = errors.New("billing returned 503")
		order := mustCreate(t, f.workflow, buyerRequest(""))

		_, err := f.workflow.Confirm(context.Background(), order.ID)
		assertKind(t, err, domain.KindUpstream)

		stored, _ := f.workflow.Get(context.Background(), order.ID)
		if stored.Status != domain.OrderStatusConfirmed {
			t.Errorf("expected CONFIRMED, got %s", stored.Status)
		}

		history, _ := f.workflow.History(context.Background(), order.ID)
		last := history[len(history)-1]
		if last.NewStatus != domain.OrderStatusConfirmed || *last.OldStatus != domain.OrderStatusConfirmed ||
			!strings.HasPrefix(last.Reason, "invoice creation failed: ") {
			t.Errorf("unexpected compensating entry: %+v", last)
		}

		f.workflow.Close()
		if len(f.publisher.events) != 0 {
			t.Errorf("expected no notifications, got %d", len(f.publisher.events))
		}
	})

	t.Run("confirming twice is a state error", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))

		if _, err := f.workflow.Confirm(context.Background(), order.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		_, err := f.workflow.Confirm(context.Background(), order.ID)
		assertKind(t, err, domain.KindState)

		if got := f.invoicer.count(); got != 1 {
			t.Errorf("expected one invoice, got %d", got)
		}
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.workflow.Confirm(context.Background(), 404)
		assertKind(t, err, domain.KindNotFound)
	})
}

func TestWorkflow_Cancel(t *testing.T) {
	t.Run("cancels with reason and is idempotent", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))

		cancelled, err := f.workflow.Cancel(context.Background(), order.ID, "changed my mind")
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if cancelled.Status != domain.OrderStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", cancelled.Status)
		}

		again, err := f.workflow.Cancel(context.Background(), order.ID, "")
		if err != nil {
			t.Fatalf("second cancel: %v", err)
		}
		if again.Status != domain.OrderStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", again.Status)
		}

		history, _ := f.workflow.History(context.Background(), order.ID)
		if len(history) != 2 || history[1].Reason != "changed my mind" {
			t.Errorf("unexpected history: %+v", history)
		}

		f.workflow.Close()
		if len(f.publisher.events) != 1 || f.publisher.events[0].Type != domain.NotificationOrderCancelled ||
			f.publisher.events[0].Reason != "changed my mind" {
			t.Errorf("unexpected notifications: %+v", f.publisher.events)
		}
		if f.tracker.count(domain.EventOrderCancelled) != 1 {
			t.Errorf("expected one cancelled event, got %v", f.tracker.events)
		}
	})

	t.Run("default reason", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))

		if _, err := f.workflow.Cancel(context.Background(), order.ID, "  "); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		history, _ := f.workflow.History(context.Background(), order.ID)
		if history[1].Reason != "cancelled" {
			t.Errorf("expected reason cancelled, got %q", history[1].Reason)
		}
	})

	t.Run("confirmed orders cannot be cancelled", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))
		if _, err := f.workflow.Confirm(context.Background(), order.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		_, err := f.workflow.Cancel(context.Background(), order.ID, "")
		assertKind(t, err, domain.KindState)
	})

	t.Run("cancelled orders cannot be confirmed", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))
		if _, err := f.workflow.Cancel(context.Background(), order.ID, ""); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		_, err := f.workflow.Confirm(context.Background(), order.ID)
		assertKind(t, err, domain.KindState)
		if got := f.invoicer.count(); got != 0 {
			t.Errorf("expected no invoices, got %d", got)
		}
	})
}

func TestWorkflow_Update(t *testing.T) {
	t.Run("updates email and re-prices items while NEW", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))

		email := "Other@Test.com"
		updated, err := f.workflow.Update(context.Background(), order.ID, UpdateRequest{
			CustomerEmail: &email,
			Items:         []ItemRequest{{ProductID: "P2", Quantity: 4}},
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		if updated.CustomerEmail != "other@test.com" {
			t.Errorf("expected normalized email, got %s", updated.CustomerEmail)
		}
		if !updated.TotalAmount.Equal(decimal.RequireFromString("10.00")) || len(updated.Items) != 1 {
			t.Errorf("unexpected re-priced order: %+v", updated)
		}
	})

	t.Run("manual status change is recorded without side effects", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))

		status := domain.OrderStatusCancelled
		updated, err := f.workflow.Update(context.Background(), order.ID, UpdateRequest{Status: &status})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.Status != domain.OrderStatusCancelled {
			t.Errorf("expected CANCELLED, got %s", updated.Status)
		}

		history, _ := f.workflow.History(context.Background(), order.ID)
		if history[len(history)-1].Reason != "manual update" {
			t.Errorf("expected manual update reason, got %q", history[len(history)-1].Reason)
		}

		f.workflow.Close()
		if len(f.publisher.events) != 0 || f.invoicer.count() != 0 {
			t.Error("expected no downstream calls")
		}
	})

	t.Run("illegal status edge", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))
		if _, err := f.workflow.Confirm(context.Background(), order.ID); err != nil {
			t.Fatalf("confirm: %v", err)
		}

		status := domain.OrderStatusNew
		_, err := f.workflow.Update(context.Background(), order.ID, UpdateRequest{Status: &status})
		assertKind(t, err, domain.KindState)
	})

	t.Run("details are frozen after NEW", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))
		if _, err := f.workflow.Cancel(context.Background(), order.ID, ""); err != nil {
			t.Fatalf("cancel: %v", err)
		}

		email := "late@test.com"
		_, err := f.workflow.Update(context.Background(), order.ID, UpdateRequest{CustomerEmail: &email})
		assertKind(t, err, domain.KindState)
	})

	t.Run("empty items list is rejected", func(t *testing.T) {
		f := newFixture(t, Config{})
		order := mustCreate(t, f.workflow, buyerRequest(""))

		_, err := f.workflow.Update(context.Background(), order.ID, UpdateRequest{Items: []ItemRequest{}})
		assertKind(t, err, domain.KindValidation)
	})
}

func TestWorkflow_OrderNumbersUnderConcurrency(t *testing.T) {
	f := newFixture(t, Config{})

	const n = 50
	numbers := make(chan string, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := f.workflow.Create(context.Background(), CreateRequest{
				CustomerEmail: fmt.Sprintf("buyer%d@test.com", i),
				Items:         []ItemRequest{{ProductID: "P1", Quantity: 1}},
			})
			if err != nil {
				t.Errorf("create %d: %v", i, err)
				return
			}
			numbers <- order.OrderNumber
		}(i)
	}
	wg.Wait()
	close(numbers)

	seen := make(map[string]bool)
	for number := range numbers {
		if seen[number] {
			t.Errorf("duplicate order number %s", number)
		}
		seen[number] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct numbers, got %d", n, len(seen))
	}

	highest, _ := f.store.MaxNumber(context.Background(), "ORD-")
	if !strings.HasSuffix(highest, fmt.Sprintf("-%05d", n)) {
		t.Errorf("expected numbers to be contiguous up to %d, max is %s", n, highest)
	}
}

func TestWorkflow_List(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	var ids []int64
	for i := range 5 {
		email := "buyer@test.com"
		if i%2 == 1 {
			email = "other@test.com"
		}
		order := mustCreate(t, f.workflow, CreateRequest{
			CustomerEmail: email,
			Items:         []ItemRequest{{ProductID: "P1", Quantity: 1}},
		})
		ids = append(ids, order.ID)
	}
	if _, err := f.workflow.Cancel(ctx, ids[0], ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	page, err := f.workflow.List(ctx, ListFilter{Page: 0, Size: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalElements != 5 || page.TotalPages != 3 || len(page.Content) != 2 {
		t.Errorf("unexpected page: total=%d pages=%d len=%d", page.TotalElements, page.TotalPages, len(page.Content))
	}
	if page.Content[0].ID != ids[4] {
		t.Errorf("expected newest first, got %d", page.Content[0].ID)
	}

	page, err = f.workflow.List(ctx, ListFilter{CustomerEmail: "BUYER@test.com"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalElements != 3 || page.Size != 20 {
		t.Errorf("expected 3 orders for buyer with default size, got %d (size %d)", page.TotalElements, page.Size)
	}

	page, err = f.workflow.List(ctx, ListFilter{Status: domain.OrderStatusCancelled, Size: 500})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.TotalElements != 1 || page.Size != 100 {
		t.Errorf("expected 1 cancelled order with clamped size, got %d (size %d)", page.TotalElements, page.Size)
	}

	_, err = f.workflow.List(ctx, ListFilter{Status: "SHIPPED"})
	assertKind(t, err, domain.KindValidation)

	_, err = f.workflow.List(ctx, ListFilter{Page: -1})
	assertKind(t, err, domain.KindValidation)
}
