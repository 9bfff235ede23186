package events

import (
	"context"

	"github.com/imrishuroy/go-bookstore/internal/aws"
)

// SQSPublisher sends events to the orders queue consumed by cmd/worker.
type SQSPublisher struct {
	pub *aws.Publisher
}

func NewSQSPublisher(client aws.SQSAPI, queueURL string) *SQSPublisher {
	return &SQSPublisher{pub: aws.NewPublisher(client, queueURL)}
}

func (p *SQSPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := Encode(ev)
	if err != nil {
		return err
	}
	return p.pub.Send(ctx, string(body), map[string]string{
		"event_type":     ev.Type,
		"order_id":       ev.OrderID,
		"correlation_id": ev.CorrelationID,
	})
}
