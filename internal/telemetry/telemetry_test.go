package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestWithSearchPath(t *testing.T) {
	t.Run("adds parameter", func(t *testing.T) {
		got, err := WithSearchPath("postgres://u:p@localhost:5432/orderflow?sslmode=disable", "orders")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(got, "search_path=orders") || !strings.Contains(got, "sslmode=disable") {
			t.Errorf("unexpected dsn: %s", got)
		}
	})

	t.Run("empty schema leaves dsn untouched", func(t *testing.T) {
		dsn := "postgres://localhost/orderflow"
		got, err := WithSearchPath(dsn, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != dsn {
			t.Errorf("expected %s, got %s", dsn, got)
		}
	})
}

func TestHealthHandler(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		h := HealthHandler(map[string]HealthCheck{
			"db": func(context.Context) error { return nil },
		})

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		var resp healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Status != "UP" || resp.Details["db"] != "UP" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("failing check reports DOWN", func(t *testing.T) {
		h := HealthHandler(map[string]HealthCheck{
			"db":    func(context.Context) error { return nil },
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
		var resp healthResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Status != "DOWN" || resp.Details["redis"] != "connection refused" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("no checks is UP", func(t *testing.T) {
		rec := httptest.NewRecorder()
		HealthHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"UP"`) {
			t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
		}
	})
}

func TestContextHandler(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	var buf bytes.Buffer
	logger := NewLogger(&buf, "orders", slog.LevelInfo).With("component", "test")
	logger.InfoContext(ctx, "hello")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}

	if record["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("expected trace id %s, got %v", span.SpanContext().TraceID(), record["trace_id"])
	}
	if record["service"] != "orders" || record["component"] != "test" {
		t.Errorf("unexpected attributes: %v", record)
	}
}
