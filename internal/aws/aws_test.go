package aws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAWSConfig_DefaultRegion(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), Settings{})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", cfg.Region)
}

func TestLoadAWSConfig_WithEndpointOverride(t *testing.T) {
	cfg, err := LoadAWSConfig(context.Background(), Settings{
		Region:           "ap-south-1",
		EndpointOverride: "http://localhost:4566",
	})
	require.NoError(t, err)
	assert.Equal(t, "ap-south-1", cfg.Region)
	require.NotNil(t, cfg.BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *cfg.BaseEndpoint)
}

func TestNewEagerAWSClients(t *testing.T) {
	clients, err := NewEagerAWSClients(context.Background(), Settings{
		Region:           "ap-south-1",
		EndpointOverride: "http://localhost:4566",
	})
	require.NoError(t, err)

	db, ok := clients.DynamoDB.(*dynamodb.Client)
	require.True(t, ok, "eager clients are concrete SDK clients")
	assert.Equal(t, "ap-south-1", db.Options().Region)
	require.NotNil(t, db.Options().BaseEndpoint)
	assert.Equal(t, "http://localhost:4566", *db.Options().BaseEndpoint)
	assert.IsType(t, &sqs.Client{}, clients.SQS)
	assert.NotNil(t, clients.CloudWatch)
}

type countingDynamo struct {
	DynamoDBAPI
	gets atomic.Int32
}

func (c *countingDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.gets.Add(1)
	return &dynamodb.GetItemOutput{}, nil
}

func TestLazyDynamoDB_SingleInitUnderConcurrency(t *testing.T) {
	var inits atomic.Int32
	inner := &countingDynamo{}
	d := &LazyDynamoDB{init: &lazy[DynamoDBAPI]{init: func(ctx context.Context) (DynamoDBAPI, error) {
		inits.Add(1)
		time.Sleep(20 * time.Millisecond)
		return inner, nil
	}}}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.GetItem(context.Background(), &dynamodb.GetItemInput{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), inits.Load())
	assert.Equal(t, int32(32), inner.gets.Load())
}

func TestLazyDynamoDB_FailedInitIsRetried(t *testing.T) {
	var inits atomic.Int32
	d := &LazyDynamoDB{init: &lazy[DynamoDBAPI]{init: func(ctx context.Context) (DynamoDBAPI, error) {
		if inits.Add(1) == 1 {
			return nil, errors.New("no credentials")
		}
		return &countingDynamo{}, nil
	}}}

	_, err := d.GetItem(context.Background(), &dynamodb.GetItemInput{})
	require.Error(t, err)

	_, err = d.GetItem(context.Background(), &dynamodb.GetItemInput{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inits.Load())
}

func TestLazyDynamoDB_CanceledCallerDoesNotPoisonInit(t *testing.T) {
	d := &LazyDynamoDB{init: &lazy[DynamoDBAPI]{init: func(ctx context.Context) (DynamoDBAPI, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &countingDynamo{}, nil
	}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.init.get(ctx)
	require.NoError(t, err)
}

type recordingSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (r *recordingSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	r.inputs = append(r.inputs, in)
	return &sqs.SendMessageOutput{}, r.err
}

func TestPublisher_Send(t *testing.T) {
	q := &recordingSQS{}
	p := NewPublisher(q, "https://sqs.local/orders")

	err := p.Send(context.Background(), `{"type":"order.paid"}`, map[string]string{
		"event_type":     "order.paid",
		"correlation_id": "",
	})
	require.NoError(t, err)
	require.Len(t, q.inputs, 1)

	in := q.inputs[0]
	assert.Equal(t, "https://sqs.local/orders", *in.QueueUrl)
	assert.Equal(t, `{"type":"order.paid"}`, *in.MessageBody)
	assert.Contains(t, in.MessageAttributes, "event_type")
	assert.NotContains(t, in.MessageAttributes, "correlation_id")
}

func TestPublisher_SendErrors(t *testing.T) {
	err := NewPublisher(&recordingSQS{}, "").Send(context.Background(), "{}", nil)
	assert.ErrorIs(t, err, ErrNoQueue)

	boom := errors.New("throttled")
	err = NewPublisher(&recordingSQS{err: boom}, "q").Send(context.Background(), "{}", nil)
	assert.ErrorIs(t, err, boom)
}
