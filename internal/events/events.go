// Package events publishes order lifecycle events for downstream consumers
// (the stock worker, analytics).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Event types.
const (
	OrderCreated = "order.created"
	OrderPaid    = "order.paid"
	OrderFailed  = "order.failed"
)

// Item is the slice of an order line the consumers need.
type Item struct {
	Slug     string `json:"slug"`
	Quantity int    `json:"qty"`
}

// Event is the message body on every sink.
type Event struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"order_id"`
	GatewayOrderID string    `json:"gateway_order_id,omitempty"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Items          []Item    `json:"items,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}

// Publisher sends events to a sink.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Encode marshals an event for the wire.
func Encode(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}

// Decode parses a wire event.
func Decode(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if ev.Type == "" || ev.OrderID == "" {
		return Event{}, fmt.Errorf("event missing type or order_id")
	}
	return ev, nil
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
