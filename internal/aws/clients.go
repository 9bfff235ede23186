package aws

import (
	"context"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// AWSClients bundles all service clients for convenience.
type AWSClients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

// NewAWSClients returns service clients that share one lazily loaded AWS
// config. Nothing touches the network or the credential chain until the
// first call on a client.
func NewAWSClients(s Settings) *AWSClients {
	queue := newLazy(s, func(cfg sdkaws.Config) *sqs.Client {
		return sqs.NewFromConfig(cfg)
	})
	metrics := newLazy(s, func(cfg sdkaws.Config) *cloudwatch.Client {
		return cloudwatch.NewFromConfig(cfg)
	})
	return &AWSClients{
		DynamoDB:   NewLazyDynamoDB(s),
		SQS:        &lazySQS{init: queue},
		CloudWatch: &lazyCloudWatch{init: metrics},
	}
}

// NewEagerAWSClients loads the AWS config immediately and returns concrete clients.
func NewEagerAWSClients(ctx context.Context, s Settings) (*AWSClients, error) {
	cfg, err := LoadAWSConfig(ctx, s)
	if err != nil {
		return nil, err
	}

	return &AWSClients{
		DynamoDB:   dynamodb.NewFromConfig(cfg),
		SQS:        sqs.NewFromConfig(cfg),
		CloudWatch: cloudwatch.NewFromConfig(cfg),
	}, nil
}
