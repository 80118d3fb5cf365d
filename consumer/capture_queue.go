package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"payment-connector/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI is the slice of the SQS client the queue code uses, kept as an
// interface so tests can substitute a fake.
type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
}

// CaptureQueue is the producer side of the capture work queue.
type CaptureQueue struct {
	client   sqsAPI
	queueURL string
}

func NewCaptureQueue(cfg aws.Config, queueURL string) *CaptureQueue {
	return &CaptureQueue{client: sqs.NewFromConfig(cfg), queueURL: queueURL}
}

// EnqueueCapture puts an "attempt capture" message on the queue. The
// payload carries only the charge id; workers re-fetch everything else
// from the store.
func (q *CaptureQueue) EnqueueCapture(ctx context.Context, chargeExternalID string) error {
	body, err := json.Marshal(models.CaptureMessage{ChargeID: chargeExternalID})
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue capture for charge %s: %w", chargeExternalID, err)
	}
	return nil
}

// receiveCount reads the coarse SQS redelivery counter off a message.
// Informational only: the durable retry ceiling lives in charge history.
func receiveCount(msg types.Message) string {
	if v, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		return v
	}
	return "unknown"
}
