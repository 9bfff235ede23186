package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-bookstore/internal/aws"
)

const DefaultCurrency = "INR"

var (
	ErrSlugExists        = errors.New("a book with this slug already exists")
	ErrNotFound          = errors.New("book not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidBook       = errors.New("invalid book")
)

// Store encapsulates operations on the books table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Create inserts a new book. The slug is normalized first; an existing slug
// yields ErrSlugExists and nothing is written.
func (s *Store) Create(ctx context.Context, b *Book) error {
	b.Slug = NormalizeSlug(b.Slug)
	if b.Slug == "" || b.Title == "" {
		return fmt.Errorf("%w: slug and title are required", ErrInvalidBook)
	}
	if b.Price < 0 {
		return fmt.Errorf("%w: price must be non-negative", ErrInvalidBook)
	}
	if b.Currency == "" {
		b.Currency = DefaultCurrency
	}
	now := s.nowFunc().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	b.Views = 0

	item, err := attributevalue.MarshalMap(b)
	if err != nil {
		return fmt.Errorf("marshal book: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(slug)"),
	})
	if err != nil {
		var cf *types.ConditionalCheckFailedException
		if errors.As(err, &cf) {
			return ErrSlugExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get looks a book up by exact slug (case-insensitive). Returns (nil, nil)
// if there is no such book; there is no fuzzy fallback.
func (s *Store) Get(ctx context.Context, slug string) (*Book, error) {
	slug = NormalizeSlug(slug)
	if slug == "" {
		return nil, nil
	}
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"slug": &types.AttributeValueMemberS{Value: slug},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var b Book
	if err := attributevalue.UnmarshalMap(out.Item, &b); err != nil {
		return nil, fmt.Errorf("unmarshal book: %w", err)
	}
	return &b, nil
}

// List returns one page of books, newest first. Category is matched exactly
// by the table scan; free text is matched in process with Filter.
func (s *Store) List(ctx context.Context, q Query) (*Page, error) {
	q = q.normalized()

	input := &dyn.ScanInput{TableName: &s.tableName}
	if q.Category != "" {
		input.FilterExpression = awsString("#c = :cat")
		input.ExpressionAttributeNames = map[string]string{"#c": "category"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":cat": &types.AttributeValueMemberS{Value: q.Category},
		}
	}

	filter := NewFilter(q.Text)
	var matched []Book
	p := dyn.NewScanPaginator(s.client, input)
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan books: %w", err)
		}
		var books []Book
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &books); err != nil {
			return nil, fmt.Errorf("unmarshal books: %w", err)
		}
		for i := range books {
			if filter.Match(&books[i]) {
				matched = append(matched, books[i])
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].Slug < matched[j].Slug
	})

	page := &Page{Items: []Book{}, Total: len(matched), Page: q.Page, Limit: q.Limit}
	start := (q.Page - 1) * q.Limit
	if start < len(matched) {
		end := start + q.Limit
		if end > len(matched) {
			end = len(matched)
		}
		page.Items = matched[start:end]
	}
	return page, nil
}

// AdjustStock adds delta to a book's stock counter. A decrement is
// conditional on enough stock remaining and fails with ErrInsufficientStock.
func (s *Store) AdjustStock(ctx context.Context, slug string, delta int) error {
	slug = NormalizeSlug(slug)
	if delta == 0 {
		return nil
	}
	op, cond := "+", "attribute_exists(slug)"
	n := delta
	if delta < 0 {
		op, cond, n = "-", "attribute_exists(slug) AND stock >= :q", -delta
	}
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"slug": &types.AttributeValueMemberS{Value: slug},
		},
		UpdateExpression:    awsString("SET stock = stock " + op + " :q, updated_at = :ua"),
		ConditionExpression: awsString(cond),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":  &types.AttributeValueMemberN{Value: strconv.Itoa(n)},
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		var cf *types.ConditionalCheckFailedException
		if !errors.As(err, &cf) {
			return fmt.Errorf("update stock: %w", err)
		}
		b, gerr := s.Get(ctx, slug)
		if gerr != nil {
			return gerr
		}
		if b == nil {
			return ErrNotFound
		}
		return ErrInsufficientStock
	}
	return nil
}

func awsString(s string) *string { return &s }
