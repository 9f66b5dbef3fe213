package messaging

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMessageCarrier(t *testing.T) {
	t.Run("set overwrites existing header", func(t *testing.T) {
		msg := kafka.Message{Headers: []kafka.Header{{Key: "a", Value: []byte("1")}}}
		c := NewMessageCarrier(&msg)

		c.Set("a", "2")
		c.Set("b", "3")

		if c.Get("a") != "2" || c.Get("b") != "3" {
			t.Errorf("unexpected headers: %v", msg.Headers)
		}
		if len(c.Keys()) != 2 {
			t.Errorf("expected 2 keys, got %v", c.Keys())
		}
		if c.Get("missing") != "" {
			t.Error("expected empty value for missing header")
		}
	})

	t.Run("round trips trace context", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
		defer span.End()

		prop := propagation.TraceContext{}
		var msg kafka.Message
		prop.Inject(ctx, NewMessageCarrier(&msg))

		extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), NewMessageCarrier(&msg)))
		if extracted.TraceID() != span.SpanContext().TraceID() {
			t.Errorf("expected trace id %s, got %s", span.SpanContext().TraceID(), extracted.TraceID())
		}
	})
}

type typedEvent struct{}

func (typedEvent) EventType() string { return "ORDER_CONFIRMED" }

func TestEventType(t *testing.T) {
	var msg kafka.Message
	c := NewMessageCarrier(&msg)

	if typed, ok := any(typedEvent{}).(Typed); ok {
		c.Set(eventTypeHeader, typed.EventType())
	}

	if got := EventType(&msg); got != "ORDER_CONFIRMED" {
		t.Errorf("expected ORDER_CONFIRMED, got %q", got)
	}
}
