package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-bookstore/internal/aws"
	"github.com/imrishuroy/go-bookstore/internal/catalog"
	"github.com/imrishuroy/go-bookstore/internal/checkout"
	"github.com/imrishuroy/go-bookstore/internal/config"
	orderevents "github.com/imrishuroy/go-bookstore/internal/events"
	"github.com/imrishuroy/go-bookstore/internal/handlers"
	"github.com/imrishuroy/go-bookstore/internal/idempotency"
	"github.com/imrishuroy/go-bookstore/internal/metrics"
	"github.com/imrishuroy/go-bookstore/internal/orders"
	"github.com/imrishuroy/go-bookstore/internal/payment"
	"github.com/imrishuroy/go-bookstore/internal/uploads"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	handlers.RegisterRoutes(r, cfg)
	return r
}

func newPublisher(cfg *config.Config, clients *aws.AWSClients) (orderevents.Publisher, func(), error) {
	switch cfg.Events.Sink {
	case config.SinkSQS:
		return orderevents.NewSQSPublisher(clients.SQS, cfg.Events.QueueURL), func() {}, nil
	case config.SinkKafka:
		p, err := orderevents.NewKafkaPublisher(cfg.Events.Kafka())
		if err != nil {
			return nil, nil, err
		}
		return p, p.Close, nil
	default:
		return orderevents.Noop{}, func() {}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// clients connect on first use, so a cold start does not pay for AWS
	// config loading until a request needs the database
	clients := aws.NewAWSClients(cfg.AWS.Settings())

	publisher, closePublisher, err := newPublisher(cfg, clients)
	if err != nil {
		log.Fatalf("failed to init event publisher: %v", err)
	}
	defer closePublisher()

	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, "bookstore")
	}

	var gateway payment.Gateway
	if cfg.Gateway.Configured() {
		gateway = payment.NewRazorpayClient(cfg.Gateway.BaseURL, cfg.Gateway.KeyID, cfg.Gateway.KeySecret, cfg.Gateway.Timeout)
	} else {
		log.Printf("[api] payment gateway credentials missing; order creation will fail closed")
	}
	if cfg.Admin.Password == "" {
		log.Printf("[api] ADMIN_PASS not set; admin routes will fail closed")
	}

	ordersStore := orders.NewStore(clients.DynamoDB, cfg.Tables.Orders)
	svc := checkout.NewService(checkout.Options{
		Gateway:     gateway,
		KeySecret:   cfg.Gateway.KeySecret,
		Currency:    cfg.Gateway.Currency,
		Orders:      ordersStore,
		Idempotency: idempotency.NewStore(clients.DynamoDB, cfg.Tables.Idempotency, cfg.Idempotency.TTL),
		Events:      publisher,
		Metrics:     recorder,
	})

	r := setupRouter(handlers.HandlerConfig{
		Checkout:      svc,
		Catalog:       catalog.NewStore(clients.DynamoDB, cfg.Tables.Books),
		Uploads:       uploads.NewSigner(cfg.Uploads.Credentials()),
		AdminPassword: cfg.Admin.Password,
	})

	if cfg.Server.RunLocal {
		log.Printf("running local server on %s", cfg.Server.Addr)
		if err := r.Run(cfg.Server.Addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
