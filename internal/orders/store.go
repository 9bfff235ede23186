package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-bookstore/internal/aws"
)

var (
	// ErrStatusMismatch means the conditional status update lost: the order
	// was not in the expected state (or does not exist).
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDuplicateOrderID means the generated order id is taken; retry with a new one.
	ErrDuplicateOrderID = errors.New("order id already exists")
	// ErrInvalidTransition is returned without touching the table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrIdempotencyConflict means the idempotency record was not IN_PROGRESS at commit.
	ErrIdempotencyConflict = errors.New("idempotency record not in progress")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) stamp(order *Order) {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
}

// Create persists a new order. The write is guarded by attribute_not_exists(order_id).
func (s *Store) Create(ctx context.Context, order *Order) error {
	s.stamp(order)
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrDuplicateOrderID
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates the order and applies
// the given idempotency item (typically idempotency.Store.MarkDoneItem) in
// one TransactWriteItems call.
//
// Returns ErrDuplicateOrderID if the order id is taken and
// ErrIdempotencyConflict if the idempotency item's condition failed.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, order *Order, idempotencyItem types.TransactWriteItem) error {
	s.stamp(order)
	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	input := &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: awsString("attribute_not_exists(order_id)"),
				},
			},
			idempotencyItem,
		},
	}

	_, err = s.client.TransactWriteItems(ctx, input)
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			reasons := tce.CancellationReasons
			if len(reasons) > 0 && reasons[0].Code != nil && *reasons[0].Code == "ConditionalCheckFailed" {
				return ErrDuplicateOrderID
			}
			if len(reasons) > 1 && reasons[1].Code != nil && *reasons[1].Code == "ConditionalCheckFailed" {
				return ErrIdempotencyConflict
			}
			return fmt.Errorf("transaction canceled: %w", err)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	key := map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            key,
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Transition moves an order from expected to next and records the payment
// identifiers, guarded by a condition on the current status. It returns the
// updated order, ErrStatusMismatch if the condition failed, or
// ErrInvalidTransition if expected -> next is not a legal move.
func (s *Store) Transition(ctx context.Context, orderID string, expected, next Status, p PaymentUpdate) (*Order, error) {
	if !CanTransition(expected, next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, expected, next)
	}
	now := s.nowFunc().UTC()

	updateExpr := "SET #s = :new, gateway_payment_id = :pid, gateway_signature = :sig, updated_at = :ua"
	values := map[string]types.AttributeValue{
		":new":      &types.AttributeValueMemberS{Value: string(next)},
		":expected": &types.AttributeValueMemberS{Value: string(expected)},
		":pid":      &types.AttributeValueMemberS{Value: p.PaymentID},
		":sig":      &types.AttributeValueMemberS{Value: p.Signature},
		":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
	}
	if next == StatusPaid {
		updateExpr += ", paid_at = :pa"
		values[":pa"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)}
	}

	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:          &updateExpr,
		ConditionExpression:       awsString("attribute_exists(order_id) AND #s = :expected"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	}

	out, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var sc *types.ConditionalCheckFailedException
		if errors.As(err, &sc) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("update item: %w", err)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
