package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-bookstore/internal/aws/awstest"
)

const (
	ordersTable = "orders"
	idempTable  = "idempotency"
)

func newTestStore() (*Store, *awstest.Dynamo) {
	mock := awstest.NewDynamo(map[string]string{
		ordersTable: "order_id",
		idempTable:  "idempotency_key",
	})
	return NewStore(mock, ordersTable), mock
}

func sampleOrder(id string) *Order {
	return &Order{
		OrderID:        id,
		GatewayOrderID: "order_GW" + id,
		Amount:         44800,
		Currency:       "INR",
		Status:         StatusCreated,
		Name:           "Asha",
		Email:          "asha@example.com",
		Items: []LineItem{
			{Slug: "cbse-maths-101", Title: "CBSE Maths", Quantity: 2, Price: 199},
			{Slug: "poems", Title: "Poems", Quantity: 1, Price: 50},
		},
	}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusCreated, StatusPaid))
	assert.True(t, CanTransition(StatusCreated, StatusFailed))
	assert.False(t, CanTransition(StatusPaid, StatusFailed))
	assert.False(t, CanTransition(StatusFailed, StatusPaid))
	assert.False(t, CanTransition(StatusCreated, StatusCreated))
	assert.False(t, CanTransition(StatusPaid, StatusPaid))
}

func TestCreate_GetRoundTrip(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, sampleOrder("o1")))

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusCreated, got.Status)
	assert.Equal(t, int64(44800), got.Amount)
	assert.Len(t, got.Items, 2)
	assert.False(t, got.CreatedAt.IsZero())

	missing, err := s.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreate_DuplicateID(t *testing.T) {
	s, mock := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, sampleOrder("o1")))
	err := s.Create(ctx, sampleOrder("o1"))
	assert.ErrorIs(t, err, ErrDuplicateOrderID)
	assert.Equal(t, 1, mock.Len(ordersTable))
}

func TestCreateWithIdempotencyTransaction(t *testing.T) {
	s, mock := newTestStore()
	ctx := context.Background()

	mock.Seed(idempTable, map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: "key-1"},
		"status":          &types.AttributeValueMemberS{Value: "IN_PROGRESS"},
	})
	done := types.TransactWriteItem{Update: &types.Update{
		TableName:                 strp(idempTable),
		Key:                       map[string]types.AttributeValue{"idempotency_key": &types.AttributeValueMemberS{Value: "key-1"}},
		UpdateExpression:          strp("SET #s = :done"),
		ConditionExpression:       strp("#s = :inprogress"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":done": &types.AttributeValueMemberS{Value: "DONE"}, ":inprogress": &types.AttributeValueMemberS{Value: "IN_PROGRESS"}},
	}}

	require.NoError(t, s.CreateWithIdempotencyTransaction(ctx, sampleOrder("o1"), done))

	var got Order
	require.NoError(t, attributevalue.UnmarshalMap(mock.Item(ordersTable, "o1"), &got))
	assert.Equal(t, "o1", got.OrderID)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "DONE"}, mock.Item(idempTable, "key-1")["status"])

	// idempotency record is no longer IN_PROGRESS: nothing is written
	err := s.CreateWithIdempotencyTransaction(ctx, sampleOrder("o2"), done)
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Nil(t, mock.Item(ordersTable, "o2"))

	// order id collision is reported as retryable
	mock.Seed(idempTable, map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: "key-1"},
		"status":          &types.AttributeValueMemberS{Value: "IN_PROGRESS"},
	})
	err = s.CreateWithIdempotencyTransaction(ctx, sampleOrder("o1"), done)
	assert.ErrorIs(t, err, ErrDuplicateOrderID)
}

func TestTransition_ForwardOnly(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, sampleOrder("o1")))

	updated, err := s.Transition(ctx, "o1", StatusCreated, StatusPaid, PaymentUpdate{PaymentID: "pay_1", Signature: "sig"})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, updated.Status)
	assert.Equal(t, "pay_1", updated.GatewayPaymentID)
	assert.Equal(t, "sig", updated.GatewaySignature)
	require.NotNil(t, updated.PaidAt)

	// the order is no longer created: a late failure cannot overwrite it
	_, err = s.Transition(ctx, "o1", StatusCreated, StatusFailed, PaymentUpdate{PaymentID: "pay_2", Signature: "bad"})
	assert.ErrorIs(t, err, ErrStatusMismatch)

	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, got.Status)
	assert.Equal(t, "pay_1", got.GatewayPaymentID)
}

func TestTransition_InvalidMoveDoesNotWrite(t *testing.T) {
	s, mock := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, sampleOrder("o1")))
	before := mock.Calls["UpdateItem"]

	_, err := s.Transition(ctx, "o1", StatusPaid, StatusFailed, PaymentUpdate{})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, before, mock.Calls["UpdateItem"])
}

func TestTransition_MissingOrder(t *testing.T) {
	s, mock := newTestStore()
	_, err := s.Transition(context.Background(), "ghost", StatusCreated, StatusPaid, PaymentUpdate{})
	assert.ErrorIs(t, err, ErrStatusMismatch)
	assert.Equal(t, 0, mock.Len(ordersTable))
}

func TestTransition_ConcurrentWritersOneWins(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, sampleOrder("o1")))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []Status
	)
	for i := 0; i < 20; i++ {
		next := StatusPaid
		if i%2 == 1 {
			next = StatusFailed
		}
		wg.Add(1)
		go func(next Status) {
			defer wg.Done()
			_, err := s.Transition(ctx, "o1", StatusCreated, next, PaymentUpdate{PaymentID: "p"})
			if err == nil {
				mu.Lock()
				wins = append(wins, next)
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ErrStatusMismatch), "unexpected error %v", err)
		}(next)
	}
	wg.Wait()

	require.Len(t, wins, 1)
	got, err := s.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, wins[0], got.Status)
}

func TestStamp_UsesNowFunc(t *testing.T) {
	s, _ := newTestStore()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	o := sampleOrder("o1")
	require.NoError(t, s.Create(context.Background(), o))
	assert.Equal(t, fixed, o.CreatedAt)
	assert.Equal(t, fixed, o.UpdatedAt)
}

func strp(s string) *string { return &s }
