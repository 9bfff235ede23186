package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-bookstore/internal/catalog"
	"github.com/imrishuroy/go-bookstore/internal/events"
	"github.com/imrishuroy/go-bookstore/internal/idempotency"
	"github.com/imrishuroy/go-bookstore/internal/metrics"
)

// Processor applies paid orders to book stock, once per order.
type Processor struct {
	books   *catalog.Store
	idem    *idempotency.Store
	metrics metrics.Recorder
}

// NewProcessor creates a worker processor; a nil recorder discards counts.
func NewProcessor(books *catalog.Store, idem *idempotency.Store, recorder metrics.Recorder) *Processor {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Processor{books: books, idem: idem, metrics: recorder}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev lambdaevents.SQSEvent) error {
	log.Printf("[worker] received %d SQS messages", len(ev.Records))
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.Printf("[worker] message %s: %v", rec.MessageId, err)
			return err
		}
	}
	return nil
}

func stockKey(orderID string) string { return "stock:" + orderID }

// lineKey guards one book's decrement within an order, so a retried order
// only touches lines that have not been applied yet.
func lineKey(orderID, slug string) string { return "stock:" + orderID + ":" + slug }

type stockLine struct {
	slug string
	qty  int
}

// mergeLines sums quantities per slug, keeping first-seen order.
func mergeLines(items []events.Item) []stockLine {
	var out []stockLine
	idx := map[string]int{}
	for _, it := range items {
		slug := catalog.NormalizeSlug(it.Slug)
		if slug == "" || it.Quantity <= 0 {
			continue
		}
		if i, ok := idx[slug]; ok {
			out[i].qty += it.Quantity
			continue
		}
		idx[slug] = len(out)
		out = append(out, stockLine{slug: slug, qty: it.Quantity})
	}
	return out
}

func (p *Processor) processMessage(ctx context.Context, rec lambdaevents.SQSMessage) error {
	ev, err := events.Decode([]byte(rec.Body))
	if err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if ev.Type != events.OrderPaid {
		log.Printf("[worker] ignoring %s for order=%s", ev.Type, ev.OrderID)
		return nil
	}

	key := stockKey(ev.OrderID)
	proceed, err := p.claim(ctx, key, ev.OrderID)
	if err != nil || !proceed {
		return err
	}

	adjusted := 0
	for _, line := range mergeLines(ev.Items) {
		applied, err := p.applyLine(ctx, ev.OrderID, line)
		if err != nil {
			p.markFailed(ctx, key, err)
			return err
		}
		if applied {
			adjusted++
		}
	}

	if err := p.idem.MarkDone(ctx, key, fmt.Sprintf(`{"order_id":%q,"adjusted":%d}`, ev.OrderID, adjusted), 200); err != nil {
		return fmt.Errorf("failed to update idempotency: %w", err)
	}
	p.metrics.Count(ctx, metrics.StockAdjusted, adjusted)
	log.Printf("[worker] stock updated for order=%s lines=%d", ev.OrderID, adjusted)
	return nil
}

// applyLine decrements one book at most once per order. It reports whether
// stock changed in this call.
func (p *Processor) applyLine(ctx context.Context, orderID string, line stockLine) (bool, error) {
	key := lineKey(orderID, line.slug)
	proceed, err := p.claim(ctx, key, orderID)
	if err != nil || !proceed {
		return false, err
	}

	applied := true
	err = p.books.AdjustStock(ctx, line.slug, -line.qty)
	switch {
	case errors.Is(err, catalog.ErrInsufficientStock), errors.Is(err, catalog.ErrNotFound):
		// not retryable; the order is already paid
		log.Printf("[worker] order=%s slug=%s qty=%d: %v", orderID, line.slug, line.qty, err)
		applied = false
	case err != nil:
		p.markFailed(ctx, key, err)
		return false, fmt.Errorf("adjust stock for %s: %w", line.slug, err)
	}

	if err := p.idem.MarkDone(ctx, key, fmt.Sprintf(`{"applied":%t}`, applied), 200); err != nil {
		return false, fmt.Errorf("failed to update idempotency: %w", err)
	}
	return applied, nil
}

func (p *Processor) markFailed(ctx context.Context, key string, cause error) {
	if err := p.idem.MarkFailed(ctx, key, cause.Error()); err != nil {
		log.Printf("[worker] mark %s failed: %v", key, err)
	}
}

// claim reports whether this delivery should apply the stock change.
func (p *Processor) claim(ctx context.Context, key, orderID string) (bool, error) {
	created, err := p.idem.CreateIfNotExists(ctx, key, orderID)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	if created {
		return true, nil
	}

	rec, err := p.idem.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if rec == nil {
		return false, fmt.Errorf("claim %s: record vanished, retry", key)
	}
	switch rec.Status {
	case idempotency.StatusDone:
		log.Printf("[worker] already applied %s", key)
		return false, nil
	case idempotency.StatusFailed:
		if err := p.idem.Reclaim(ctx, key, orderID); err != nil {
			return false, fmt.Errorf("reclaim %s: %w", key, err)
		}
		return true, nil
	default:
		// another delivery is in flight; let SQS redeliver later
		return false, fmt.Errorf("%s is already being processed", key)
	}
}
