package aws

import (
	"context"
	"log"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/singleflight"
)

// lazy holds a value built on first use. Concurrent first callers share a
// single in-flight init; a failed init is not cached.
type lazy[T any] struct {
	init  func(context.Context) (T, error)
	group singleflight.Group

	mu    sync.RWMutex
	ready bool
	val   T
}

func newLazy[T any](s Settings, build func(sdkaws.Config) T) *lazy[T] {
	return &lazy[T]{init: func(ctx context.Context) (T, error) {
		cfg, err := LoadAWSConfig(ctx, s)
		if err != nil {
			var zero T
			return zero, err
		}
		return build(cfg), nil
	}}
}

func (l *lazy[T]) get(ctx context.Context) (T, error) {
	l.mu.RLock()
	if l.ready {
		v := l.val
		l.mu.RUnlock()
		return v, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do("init", func() (interface{}, error) {
		l.mu.RLock()
		if l.ready {
			v := l.val
			l.mu.RUnlock()
			return v, nil
		}
		l.mu.RUnlock()

		// the shared init must not die with whichever request happened to start it
		val, err := l.init(context.WithoutCancel(ctx))
		if err != nil {
			log.Printf("[aws] client init failed: %v", err)
			return nil, err
		}
		l.mu.Lock()
		l.val, l.ready = val, true
		l.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// LazyDynamoDB is a DynamoDBAPI whose underlying client is created on the
// first request and then reused for the life of the process.
type LazyDynamoDB struct {
	init *lazy[DynamoDBAPI]
}

// NewLazyDynamoDB returns a process-wide DynamoDB handle for the given settings.
func NewLazyDynamoDB(s Settings) *LazyDynamoDB {
	return &LazyDynamoDB{init: newLazy(s, func(cfg sdkaws.Config) DynamoDBAPI {
		return dynamodb.NewFromConfig(cfg)
	})}
}

func (d *LazyDynamoDB) PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	c, err := d.init.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.PutItem(ctx, in, optFns...)
}

func (d *LazyDynamoDB) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c, err := d.init.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.GetItem(ctx, in, optFns...)
}

func (d *LazyDynamoDB) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c, err := d.init.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.UpdateItem(ctx, in, optFns...)
}

func (d *LazyDynamoDB) Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	c, err := d.init.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.Scan(ctx, in, optFns...)
}

func (d *LazyDynamoDB) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c, err := d.init.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.TransactWriteItems(ctx, in, optFns...)
}

type lazySQS struct {
	init *lazy[*sqs.Client]
}

func (q *lazySQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	c, err := q.init.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.SendMessage(ctx, in, optFns...)
}

type lazyCloudWatch struct {
	init *lazy[*cloudwatch.Client]
}

func (w *lazyCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c, err := w.init.get(ctx)
	if err != nil {
		return nil, err
	}
	return c.PutMetricData(ctx, in, optFns...)
}
