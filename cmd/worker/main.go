package main

import (
	"context"
	"log"
	"os"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/go-bookstore/internal/aws"
	"github.com/imrishuroy/go-bookstore/internal/catalog"
	"github.com/imrishuroy/go-bookstore/internal/config"
	"github.com/imrishuroy/go-bookstore/internal/idempotency"
	"github.com/imrishuroy/go-bookstore/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	clients := aws.NewAWSClients(cfg.AWS.Settings())

	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, "bookstore-worker")
	}

	p := NewProcessor(
		catalog.NewStore(clients.DynamoDB, cfg.Tables.Books),
		idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Idempotency.TTL),
		recorder,
	)

	// If RUN_LOCAL=true, simulate a single SQS event for local testing.
	if cfg.Server.RunLocal {
		testBody := os.Getenv("LOCAL_SQS_BODY")
		if testBody == "" {
			testBody = `{"type":"order.paid","order_id":"local-order-1","items":[{"slug":"local-book","qty":1}]}`
		}
		event := lambdaevents.SQSEvent{
			Records: []lambdaevents.SQSMessage{{MessageId: "local-1", Body: testBody}},
		}
		if err := p.Handle(context.Background(), event); err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		return
	}

	lambda.Start(p.Handle)
}
