// Package checkout runs the two halves of a purchase: creating a payable
// order with the gateway, and recording the verified payment outcome.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/go-bookstore/internal/apperr"
	"github.com/imrishuroy/go-bookstore/internal/events"
	"github.com/imrishuroy/go-bookstore/internal/idempotency"
	"github.com/imrishuroy/go-bookstore/internal/metrics"
	"github.com/imrishuroy/go-bookstore/internal/money"
	"github.com/imrishuroy/go-bookstore/internal/orders"
	"github.com/imrishuroy/go-bookstore/internal/payment"
)

const (
	defaultCurrency = "INR"
	maxIDAttempts   = 3
)

// Options wires a Service. Gateway may be nil when no credentials are
// configured; order creation then fails with a configuration error.
type Options struct {
	Gateway     payment.Gateway
	KeySecret   string
	Currency    string
	Orders      *orders.Store
	Idempotency *idempotency.Store
	Events      events.Publisher
	Metrics     metrics.Recorder
}

// Service orchestrates order creation and payment verification.
type Service struct {
	gateway   payment.Gateway
	keySecret string
	currency  string
	orders    *orders.Store
	idem      *idempotency.Store
	events    events.Publisher
	metrics   metrics.Recorder

	nowFunc func() time.Time
	newID   func() string
}

// NewService returns a Service; nil Events/Metrics fall back to no-ops.
func NewService(opts Options) *Service {
	s := &Service{
		gateway:   opts.Gateway,
		keySecret: opts.KeySecret,
		currency:  strings.ToUpper(strings.TrimSpace(opts.Currency)),
		orders:    opts.Orders,
		idem:      opts.Idempotency,
		events:    opts.Events,
		metrics:   opts.Metrics,
		nowFunc:   time.Now,
		newID:     newOrderID,
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop{}
	}
	return s
}

func newOrderID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "order_" + uuid.NewString()
	}
	return "order_" + id.String()
}

// GatewayConfigured reports whether orders can be created.
func (s *Service) GatewayConfigured() bool {
	return s.gateway != nil && s.gateway.KeyID() != "" && s.keySecret != ""
}

// CreateOrderInput is a normalized checkout request.
type CreateOrderInput struct {
	Items          []orders.LineItem
	Name           string
	Email          string
	Phone          string
	Address        orders.Address
	Currency       string
	Metadata       map[string]interface{}
	IdempotencyKey string
}

// OrderSummary is the client-facing view of a newly created order.
type OrderSummary struct {
	ID             string `json:"id"`
	GatewayOrderID string `json:"gatewayOrderId"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
}

// GatewayEcho is what the gateway reported back for the remote order.
type GatewayEcho struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// CreateOrderResponse is returned to the browser to open the payment widget.
type CreateOrderResponse struct {
	Success     bool         `json:"success"`
	Order       OrderSummary `json:"order"`
	GatewayEcho GatewayEcho  `json:"gatewayEcho"`
	PublicKey   string       `json:"publicKey"`
}

// CreateOrderResult carries the response plus replay information.
type CreateOrderResult struct {
	Response CreateOrderResponse
	Status   int
	Replayed bool
}

func normalizeItems(items []orders.LineItem) ([]orders.LineItem, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("items must not be empty")
	}
	out := make([]orders.LineItem, len(items))
	for i, it := range items {
		if it.Quantity < 0 {
			return nil, apperr.Validation("item quantity must not be negative")
		}
		if it.Price < 0 {
			return nil, apperr.Validation("item price must not be negative")
		}
		if it.Quantity == 0 {
			it.Quantity = 1
		}
		out[i] = it
	}
	return out, nil
}

func lines(items []orders.LineItem) []money.Line {
	out := make([]money.Line, 0, len(items))
	for _, it := range items {
		out = append(out, money.Line{Price: it.Price, Quantity: it.Quantity})
	}
	return out
}

// CreateOrder prices the cart, opens a remote gateway order and persists the
// local order. Nothing is persisted when the gateway call fails.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if !s.GatewayConfigured() {
		return nil, apperr.Configuration("payment gateway not configured")
	}
	items, err := normalizeItems(in.Items)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Email) == "" {
		return nil, apperr.Validation("name and email are required")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.currency
	}
	amount, err := money.CartMinorUnits(lines(items))
	if err != nil {
		return nil, apperr.Validation("order total is too large")
	}
	key := strings.TrimSpace(in.IdempotencyKey)

	orderID := s.newID()
	if key != "" {
		replay, err := s.claim(ctx, key, orderID)
		if err != nil || replay != nil {
			return replay, err
		}
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, payment.CreateOrderRequest{
		Amount:         amount,
		Currency:       currency,
		Receipt:        payment.Receipt(orderID),
		PaymentCapture: 1,
		Notes:          map[string]string{"order_id": orderID},
	})
	if err != nil {
		s.metrics.Count(ctx, metrics.GatewayErrors, 1)
		s.release(ctx, key, "gateway: "+err.Error())
		if !apperr.Is(err, apperr.KindUpstream) {
			err = apperr.Upstream("payment gateway order failed", "", err)
		}
		return nil, err
	}

	order := &orders.Order{
		OrderID:        orderID,
		GatewayOrderID: gwOrder.ID,
		Receipt:        payment.Receipt(orderID),
		Amount:         amount,
		Currency:       currency,
		Status:         orders.StatusCreated,
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.TrimSpace(in.Email),
		Phone:          strings.TrimSpace(in.Phone),
		Address:        in.Address,
		Items:          items,
		Metadata:       in.Metadata,
		IdempotencyKey: key,
	}

	var resp CreateOrderResponse
	for attempt := 1; ; attempt++ {
		resp = CreateOrderResponse{
			Success: true,
			Order: OrderSummary{
				ID:             order.OrderID,
				GatewayOrderID: gwOrder.ID,
				Amount:         amount,
				Currency:       currency,
			},
			GatewayEcho: GatewayEcho{ID: gwOrder.ID, Amount: gwOrder.Amount, Currency: gwOrder.Currency},
			PublicKey:   s.gateway.KeyID(),
		}
		err = s.persist(ctx, order, key, resp)
		if !errors.Is(err, orders.ErrDuplicateOrderID) || attempt == maxIDAttempts {
			break
		}
		log.Printf("[checkout] order id %s taken, regenerating", order.OrderID)
		order.OrderID = s.newID()
	}
	if err != nil {
		if errors.Is(err, orders.ErrIdempotencyConflict) {
			return nil, apperr.Conflict("idempotency key is no longer in progress")
		}
		s.release(ctx, key, "persist: "+err.Error())
		return nil, apperr.Internal("persist order", err)
	}

	s.metrics.Count(ctx, metrics.OrdersCreated, 1)
	s.publish(ctx, events.OrderCreated, order)
	return &CreateOrderResult{Response: resp, Status: http.StatusCreated}, nil
}

// claim takes the idempotency key for this request. A non-nil result means
// the request was already completed and its stored response is replayed.
func (s *Service) claim(ctx context.Context, key, orderID string) (*CreateOrderResult, error) {
	if s.idem == nil {
		return nil, apperr.Configuration("idempotency store not configured")
	}
	created, err := s.idem.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		return nil, apperr.Internal("claim idempotency key", err)
	}
	if created {
		return nil, nil
	}

	rec, err := s.idem.Get(ctx, key)
	if err != nil {
		return nil, apperr.Internal("read idempotency key", err)
	}
	if rec == nil {
		// expired between the two calls
		return nil, apperr.Conflict("idempotency key is being processed, retry")
	}
	switch rec.Status {
	case idempotency.StatusDone:
		var resp CreateOrderResponse
		if err := json.Unmarshal([]byte(rec.ResponseBody), &resp); err != nil {
			return nil, apperr.Internal("decode stored response", err)
		}
		status := rec.ResponseStatus
		if status == 0 {
			status = http.StatusCreated
		}
		s.metrics.Count(ctx, metrics.OrdersReplayed, 1)
		return &CreateOrderResult{Response: resp, Status: status, Replayed: true}, nil
	case idempotency.StatusFailed:
		if err := s.idem.Reclaim(ctx, key, orderID); err != nil {
			if errors.Is(err, idempotency.ErrConditionFailed) {
				return nil, apperr.Conflict("idempotency key is being processed")
			}
			return nil, apperr.Internal("reclaim idempotency key", err)
		}
		return nil, nil
	default:
		return nil, apperr.Conflict("idempotency key is being processed")
	}
}

func (s *Service) release(ctx context.Context, key, note string) {
	if key == "" || s.idem == nil {
		return
	}
	if err := s.idem.MarkFailed(ctx, key, note); err != nil {
		log.Printf("[checkout] mark idempotency key %q failed: %v", key, err)
	}
}

func (s *Service) persist(ctx context.Context, order *orders.Order, key string, resp CreateOrderResponse) error {
	if key == "" {
		return s.orders.Create(ctx, order)
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.orders.CreateWithIdempotencyTransaction(ctx, order, s.idem.MarkDoneItem(key, string(body), http.StatusCreated))
}

// VerifyPaymentInput is what the checkout widget hands back after payment.
type VerifyPaymentInput struct {
	OrderID        string
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

// VerifyPaymentResult reports whether the signature checked out, with the
// order as stored after the attempt.
type VerifyPaymentResult struct {
	Success bool
	Order   *orders.Order
}

// VerifyPayment checks the payment signature and moves the order to paid or
// failed. A terminal order is never moved again: repeating the same outcome
// is idempotent, a contradicting outcome is a conflict.
func (s *Service) VerifyPayment(ctx context.Context, in VerifyPaymentInput) (*VerifyPaymentResult, error) {
	if in.OrderID == "" || in.GatewayOrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, apperr.Validation("orderId, gatewayOrderId, paymentId and signature are required")
	}
	if s.keySecret == "" {
		return nil, apperr.Configuration("payment gateway secret not configured")
	}

	order, err := s.orders.Get(ctx, in.OrderID)
	if err != nil {
		return nil, apperr.Internal("load order", err)
	}
	if order == nil {
		return nil, apperr.NotFound("order not found")
	}

	valid := order.GatewayOrderID == in.GatewayOrderID &&
		payment.VerifySignature(s.keySecret, in.GatewayOrderID, in.PaymentID, in.Signature)
	target := orders.StatusFailed
	if valid {
		target = orders.StatusPaid
	}

	if order.Status.IsTerminal() {
		return settled(order, target, valid)
	}

	updated, err := s.orders.Transition(ctx, order.OrderID, orders.StatusCreated, target,
		orders.PaymentUpdate{PaymentID: in.PaymentID, Signature: in.Signature})
	if errors.Is(err, orders.ErrStatusMismatch) {
		// another verification won the race
		current, gerr := s.orders.Get(ctx, in.OrderID)
		if gerr != nil {
			return nil, apperr.Internal("reload order", gerr)
		}
		if current == nil || !current.Status.IsTerminal() {
			return nil, apperr.Conflict("order changed concurrently")
		}
		return settled(current, target, valid)
	}
	if err != nil {
		return nil, apperr.Internal("update order status", err)
	}

	if valid {
		s.metrics.Count(ctx, metrics.PaymentsVerified, 1)
		s.publish(ctx, events.OrderPaid, updated)
	} else {
		log.Printf("[checkout] signature mismatch for order %s", updated.OrderID)
		s.metrics.Count(ctx, metrics.PaymentsRejected, 1)
		s.publish(ctx, events.OrderFailed, updated)
	}
	return &VerifyPaymentResult{Success: valid, Order: updated}, nil
}

func settled(order *orders.Order, target orders.Status, valid bool) (*VerifyPaymentResult, error) {
	if order.Status != target {
		return nil, apperr.Conflict("order already " + string(order.Status))
	}
	return &VerifyPaymentResult{Success: valid, Order: order}, nil
}

func (s *Service) publish(ctx context.Context, typ string, o *orders.Order) {
	ev := events.Event{
		Type:           typ,
		OrderID:        o.OrderID,
		GatewayOrderID: o.GatewayOrderID,
		Amount:         o.Amount,
		Currency:       o.Currency,
		OccurredAt:     s.nowFunc().UTC(),
		CorrelationID:  o.IdempotencyKey,
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, events.Item{Slug: it.Slug, Quantity: it.Quantity})
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		log.Printf("[checkout] publish %s for order %s: %v", typ, o.OrderID, err)
	}
}
