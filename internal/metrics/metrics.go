// Package metrics records checkout counters in CloudWatch.
package metrics

import (
	"context"
	"log"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/imrishuroy/go-bookstore/internal/aws"
)

// Counter names.
const (
	OrdersCreated    = "OrdersCreated"
	OrdersReplayed   = "OrdersReplayed"
	GatewayErrors    = "GatewayErrors"
	PaymentsVerified = "PaymentsVerified"
	PaymentsRejected = "PaymentsRejected"
	StockAdjusted    = "StockAdjusted"
)

// Recorder counts events. Implementations must not fail the caller.
type Recorder interface {
	Count(ctx context.Context, name string, n int)
}

// Noop discards counts.
type Noop struct{}

func (Noop) Count(context.Context, string, int) {}

// CloudWatch writes one datum per Count call.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	service   string
	nowFunc   func() time.Time
}

func NewCloudWatch(client aws.CloudWatchAPI, namespace, service string) *CloudWatch {
	return &CloudWatch{client: client, namespace: namespace, service: service, nowFunc: time.Now}
}

func (c *CloudWatch) Count(ctx context.Context, name string, n int) {
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(name),
				Value:      sdkaws.Float64(float64(n)),
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  sdkaws.Time(c.nowFunc()),
				Dimensions: []cwtypes.Dimension{
					{Name: sdkaws.String("Service"), Value: sdkaws.String(c.service)},
				},
			},
		},
	})
	if err != nil {
		log.Printf("[metrics] put %s failed: %v", name, err)
	}
}
