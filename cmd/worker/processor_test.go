package main

import (
	"context"
	"errors"
	"testing"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-bookstore/internal/aws/awstest"
	"github.com/imrishuroy/go-bookstore/internal/catalog"
	"github.com/imrishuroy/go-bookstore/internal/events"
	"github.com/imrishuroy/go-bookstore/internal/idempotency"
)

func newTestProcessor(t *testing.T) (*Processor, *catalog.Store, *idempotency.Store, *awstest.Dynamo) {
	t.Helper()
	db := awstest.NewDynamo(map[string]string{
		"books":       "slug",
		"idempotency": "idempotency_key",
	})
	books := catalog.NewStore(db, "books")
	idem := idempotency.NewStore(db, "idempotency", 48*time.Hour)
	ctx := context.Background()
	require.NoError(t, books.Create(ctx, &catalog.Book{Slug: "dune", Title: "Dune", Price: 10, Stock: 5}))
	require.NoError(t, books.Create(ctx, &catalog.Book{Slug: "poems", Title: "Poems", Price: 1, Stock: 1}))
	return NewProcessor(books, idem, nil), books, idem, db
}

func sqsEvent(t *testing.T, evs ...events.Event) lambdaevents.SQSEvent {
	t.Helper()
	var out lambdaevents.SQSEvent
	for _, ev := range evs {
		b, err := events.Encode(ev)
		require.NoError(t, err)
		out.Records = append(out.Records, lambdaevents.SQSMessage{MessageId: ev.OrderID, Body: string(b)})
	}
	return out
}

func paid(orderID string, items ...events.Item) events.Event {
	return events.Event{Type: events.OrderPaid, OrderID: orderID, Amount: 100, Currency: "INR", Items: items}
}

func stockOf(t *testing.T, books *catalog.Store, slug string) int {
	t.Helper()
	b, err := books.Get(context.Background(), slug)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b.Stock
}

func TestWorkerProcess_DecrementsStockOnce(t *testing.T) {
	p, books, idem, _ := newTestProcessor(t)
	ctx := context.Background()
	ev := sqsEvent(t, paid("o1", events.Item{Slug: "dune", Quantity: 2}, events.Item{Slug: "poems", Quantity: 1}))

	require.NoError(t, p.Handle(ctx, ev))
	assert.Equal(t, 3, stockOf(t, books, "dune"))
	assert.Equal(t, 0, stockOf(t, books, "poems"))

	// redelivery is a no-op
	require.NoError(t, p.Handle(ctx, ev))
	assert.Equal(t, 3, stockOf(t, books, "dune"))

	rec, err := idem.Get(ctx, "stock:o1")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
}

func TestWorkerProcess_InsufficientStockIsNotRetried(t *testing.T) {
	p, books, _, _ := newTestProcessor(t)
	ev := sqsEvent(t, paid("o1", events.Item{Slug: "poems", Quantity: 3}, events.Item{Slug: "ghost", Quantity: 1}))

	require.NoError(t, p.Handle(context.Background(), ev))
	assert.Equal(t, 1, stockOf(t, books, "poems"))
}

func TestWorkerProcess_IgnoresOtherEvents(t *testing.T) {
	p, books, _, db := newTestProcessor(t)
	ev := sqsEvent(t,
		events.Event{Type: events.OrderCreated, OrderID: "o1", Items: []events.Item{{Slug: "dune", Quantity: 1}}},
		events.Event{Type: events.OrderFailed, OrderID: "o2", Items: []events.Item{{Slug: "dune", Quantity: 1}}},
	)
	require.NoError(t, p.Handle(context.Background(), ev))
	assert.Equal(t, 5, stockOf(t, books, "dune"))
	assert.Equal(t, 0, db.Len("idempotency"))
}

func TestWorkerProcess_MalformedBody(t *testing.T) {
	p, _, _, _ := newTestProcessor(t)
	for _, body := range []string{"not json", `{"type":"order.paid"}`} {
		err := p.Handle(context.Background(), lambdaevents.SQSEvent{
			Records: []lambdaevents.SQSMessage{{MessageId: "m", Body: body}},
		})
		assert.Error(t, err, body)
	}
}

func TestWorkerProcess_InFlightDeliveryIsRetried(t *testing.T) {
	p, books, idem, _ := newTestProcessor(t)
	ctx := context.Background()
	_, err := idem.CreateIfNotExists(ctx, "stock:o1", "o1")
	require.NoError(t, err)

	err = p.Handle(ctx, sqsEvent(t, paid("o1", events.Item{Slug: "dune", Quantity: 1})))
	assert.Error(t, err)
	assert.Equal(t, 5, stockOf(t, books, "dune"))
}

func TestWorkerProcess_FailedAttemptIsReclaimed(t *testing.T) {
	p, books, _, db := newTestProcessor(t)
	ctx := context.Background()
	ev := sqsEvent(t, paid("o1", events.Item{Slug: "dune", Quantity: 1}))

	db.Hook = func(op, table string) error {
		if op == "UpdateItem" && table == "books" {
			return errors.New("throttled")
		}
		return nil
	}
	require.Error(t, p.Handle(ctx, ev))
	assert.Equal(t, 5, stockOf(t, books, "dune"))

	db.Hook = nil
	require.NoError(t, p.Handle(ctx, ev))
	assert.Equal(t, 4, stockOf(t, books, "dune"))
}

func TestWorkerProcess_RetryOnlyTouchesUnappliedLines(t *testing.T) {
	p, books, idem, db := newTestProcessor(t)
	ctx := context.Background()
	ev := sqsEvent(t, paid("o1", events.Item{Slug: "dune", Quantity: 2}, events.Item{Slug: "poems", Quantity: 1}))

	// the first book decrement succeeds, the second one fails
	stockUpdates := 0
	db.Hook = func(op, table string) error {
		if op == "UpdateItem" && table == "books" {
			stockUpdates++
			if stockUpdates == 2 {
				return errors.New("throttled")
			}
		}
		return nil
	}
	require.Error(t, p.Handle(ctx, ev))
	assert.Equal(t, 3, stockOf(t, books, "dune"))
	assert.Equal(t, 1, stockOf(t, books, "poems"))

	db.Hook = nil
	require.NoError(t, p.Handle(ctx, ev))
	assert.Equal(t, 3, stockOf(t, books, "dune"), "applied line must not be decremented again")
	assert.Equal(t, 0, stockOf(t, books, "poems"))

	for _, key := range []string{"stock:o1", "stock:o1:dune", "stock:o1:poems"} {
		rec, err := idem.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, rec, key)
		assert.Equal(t, idempotency.StatusDone, rec.Status, key)
	}
}

func TestMergeLines(t *testing.T) {
	got := mergeLines([]events.Item{
		{Slug: "Dune", Quantity: 1},
		{Slug: "poems", Quantity: 2},
		{Slug: "dune", Quantity: 3},
		{Slug: "", Quantity: 1},
		{Slug: "zero", Quantity: 0},
	})
	assert.Equal(t, []stockLine{{slug: "dune", qty: 4}, {slug: "poems", qty: 2}}, got)
}
