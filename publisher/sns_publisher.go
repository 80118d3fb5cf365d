package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"payment-connector/models"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

// snsAPI is the slice of the SNS client the publisher uses.
type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher emits charge/refund domain events to an SNS topic.
// Subscribers (ledger, webhooks to merchants) are outside this service.
type SNSPublisher struct {
	client   snsAPI
	topicARN string
	logger   *zap.Logger
}

func NewSNSPublisher(cfg sdkaws.Config, topicARN string, logger *zap.Logger) *SNSPublisher {
	return &SNSPublisher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		logger:   logger,
	}
}

func (p *SNSPublisher) PublishChargeStatusChanged(ctx context.Context, event models.ChargeStatusChangedEvent) error {
	return p.publish(ctx, event)
}

func (p *SNSPublisher) PublishRefundStatusChanged(ctx context.Context, event models.RefundStatusChangedEvent) error {
	return p.publish(ctx, event)
}

func (p *SNSPublisher) publish(ctx context.Context, event interface{}) error {
	if p.topicARN == "" {
		return fmt.Errorf("sns publisher has no topic ARN configured")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal domain event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: sdkaws.String(p.topicARN),
		Message:  sdkaws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", p.topicARN, err)
	}
	p.logger.Debug("domain event published", zap.String("topic", p.topicARN))
	return nil
}
