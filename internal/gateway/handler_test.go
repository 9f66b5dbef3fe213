package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joao-fontenele/orderflow-platform/internal/domain"
)

const unreachable = "http://localhost:99999"

// downstreams maps a service name to its fake; missing services are
// unreachable.
type downstreams map[string]http.HandlerFunc

func newTestRouter(t *testing.T, fakes downstreams) http.Handler {
	t.Helper()

	proxyFor := func(name string) *ServiceProxy {
		h, ok := fakes[name]
		if !ok {
			return NewServiceProxy(unreachable, &http.Client{})
		}
		server := httptest.NewServer(h)
		t.Cleanup(server.Close)
		return NewServiceProxy(server.URL, server.Client())
	}

	services := Services{
		Orders:       proxyFor("orders"),
		Billing:      proxyFor("billing"),
		Notification: proxyFor("notification"),
		Analytics:    proxyFor("analytics"),
		Catalog:      proxyFor("catalog"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	aggregator := NewAggregator(services, 100*time.Millisecond, time.Second, logger)

	return NewRouter(NewHandler(aggregator, services, logger))
}

func healthy(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"UP","details":{"postgres":"UP"}}`))
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_HandleSystemStatus(t *testing.T) {
	router := newTestRouter(t, downstreams{
		"orders": healthy,
		"billing": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"DOWN","details":{"sqlite":"database is locked"}}`))
		},
		"analytics": func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		},
		"catalog": healthy,
	})

	start := time.Now()
	rec := get(t, router, "/gateway/system/status")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected probes to be bounded by the probe timeout, took %s", elapsed)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var statuses []domain.ServiceStatus
	if err := json.NewDecoder(rec.Body).Decode(&statuses); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := []struct{ service, status string }{
		{"gateway", "OK"},
		{"orders", "UP"},
		{"billing", "DOWN"},
		{"notification", "DOWN"},
		{"analytics", "DOWN"},
		{"catalog", "UP"},
	}
	if len(statuses) != len(want) {
		t.Fatalf("expected %d statuses, got %d", len(want), len(statuses))
	}
	for i, w := range want {
		if statuses[i].Service != w.service || statuses[i].Status != w.status {
			t.Errorf("status[%d]: expected %s=%s, got %s=%s", i, w.service, w.status, statuses[i].Service, statuses[i].Status)
		}
	}

	if statuses[0].Details != nil {
		t.Errorf("expected no details for the gateway, got %v", statuses[0].Details)
	}
	if statuses[1].Details["postgres"] != "UP" {
		t.Errorf("expected orders health details, got %v", statuses[1].Details)
	}
	if statuses[2].Details["sqlite"] != "database is locked" {
		t.Errorf("expected billing health details, got %v", statuses[2].Details)
	}
	if statuses[3].Details["error"] == "" {
		t.Errorf("expected an error detail for the unreachable service, got %v", statuses[3].Details)
	}
}

func TestHandler_HandleOrderDetails(t *testing.T) {
	order := func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/7" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"order 8 not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7,"orderNumber":"ORD-2026-00007","status":"CONFIRMED","totalAmount":20.00,"currency":"USD","items":[]}`))
	}

	t.Run("includes invoice", func(t *testing.T) {
		router := newTestRouter(t, downstreams{
			"orders": order,
			"billing": func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("orderId") != "7" {
					t.Errorf("expected orderId=7, got %s", r.URL.RawQuery)
				}
				_, _ = w.Write([]byte(`[{"id":1,"invoiceNumber":"INV-2026-00001","orderId":7,"amount":20.00,"currency":"USD","status":"ISSUED"}]`))
			},
		})

		rec := get(t, router, "/gateway/orders/7")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var details OrderDetails
		if err := json.NewDecoder(rec.Body).Decode(&details); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if details.Order.OrderNumber != "ORD-2026-00007" {
			t.Errorf("unexpected order: %+v", details.Order)
		}
		if details.Invoice == nil || details.Invoice.InvoiceNumber != "INV-2026-00001" {
			t.Errorf("unexpected invoice: %+v", details.Invoice)
		}
	})

	t.Run("invoice is null when billing is down", func(t *testing.T) {
		router := newTestRouter(t, downstreams{"orders": order})

		rec := get(t, router, "/gateway/orders/7")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rec.Code)
		}

		var body map[string]json.RawMessage
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if string(body["invoice"]) != "null" {
			t.Errorf("expected null invoice, got %s", body["invoice"])
		}
	})

	t.Run("unknown order is 404 without an invoice lookup", func(t *testing.T) {
		var billingCalls atomic.Int32
		router := newTestRouter(t, downstreams{
			"orders": order,
			"billing": func(w http.ResponseWriter, r *http.Request) {
				billingCalls.Add(1)
				_, _ = w.Write([]byte(`[]`))
			},
		})

		rec := get(t, router, "/gateway/orders/8")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rec.Code)
		}
		if n := billingCalls.Load(); n != 0 {
			t.Errorf("expected no billing calls, got %d", n)
		}
	})

	t.Run("orders unreachable is 502", func(t *testing.T) {
		router := newTestRouter(t, downstreams{})

		rec := get(t, router, "/gateway/orders/7")
		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}
	})
}

func TestHandler_DegradedReads(t *testing.T) {
	router := newTestRouter(t, downstreams{})

	tests := []struct {
		target string
		want   string
	}{
		{"/gateway/orders/latest", "[]"},
		{"/gateway/catalog", "[]"},
		{"/gateway/analytics/counters", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, router, tt.target)
			if rec.Code != http.StatusOK {
				t.Errorf("expected status 200, got %d", rec.Code)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestHandler_Reads(t *testing.T) {
	router := newTestRouter(t, downstreams{
		"orders": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("size") != "10" {
				t.Errorf("expected size=10, got %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`{"content":[{"id":2,"orderNumber":"ORD-2026-00002"},{"id":1,"orderNumber":"ORD-2026-00001"}],"page":0,"size":10,"totalElements":2,"totalPages":1}`))
		},
		"catalog": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("category") != "tools" {
				t.Errorf("expected category=tools, got %s", r.URL.RawQuery)
			}
			_, _ = w.Write([]byte(`[{"id":"P1","name":"Widget","price":10.00,"currency":"USD","active":true}]`))
		},
		"analytics": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"orders.created":2}`))
		},
	})

	t.Run("latest orders", func(t *testing.T) {
		var orders []domain.Order
		if err := json.NewDecoder(get(t, router, "/gateway/orders/latest").Body).Decode(&orders); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(orders) != 2 || orders[0].ID != 2 {
			t.Errorf("unexpected orders: %+v", orders)
		}
	})

	t.Run("catalog", func(t *testing.T) {
		var products []domain.Product
		if err := json.NewDecoder(get(t, router, "/gateway/catalog?category=tools").Body).Decode(&products); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(products) != 1 || products[0].ID != "P1" {
			t.Errorf("unexpected products: %+v", products)
		}
	})

	t.Run("overview", func(t *testing.T) {
		var overview Overview
		if err := json.NewDecoder(get(t, router, "/gateway/overview").Body).Decode(&overview); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(overview.Services) != 6 || len(overview.LatestOrders) != 2 || overview.Counters["orders.created"] != 2 {
			t.Errorf("unexpected overview: %+v", overview)
		}
	})
}

func TestHandler_PassThrough(t *testing.T) {
	t.Run("forwards status, body and idempotency key", func(t *testing.T) {
		router := newTestRouter(t, downstreams{
			"orders": func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost || r.URL.Path != "/orders" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				if r.Header.Get("Idempotency-Key") != "k1" {
					t.Errorf("expected Idempotency-Key k1, got %q", r.Header.Get("Idempotency-Key"))
				}
				body, _ := io.ReadAll(r.Body)
				if string(body) != `{"customerEmail":"buyer@test.com"}` {
					t.Errorf("unexpected body: %s", body)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"idempotency key reuse with different request"}`))
			},
		})

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"customerEmail":"buyer@test.com"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "k1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rec.Code)
		}
		if rec.Body.String() != `{"error":"idempotency key reuse with different request"}` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("keeps nested paths", func(t *testing.T) {
		router := newTestRouter(t, downstreams{
			"billing": func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/billing/invoices" || r.URL.Query().Get("orderId") != "3" {
					t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
				}
				_, _ = w.Write([]byte(`[]`))
			},
		})

		rec := get(t, router, "/billing/invoices?orderId=3")
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when service unavailable", func(t *testing.T) {
		router := newTestRouter(t, downstreams{})

		rec := get(t, router, "/notifications?orderId=1")

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "service unavailable") {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})
}
