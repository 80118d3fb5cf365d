package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"payment-connector/awsclient"
	"payment-connector/gateway"
	"payment-connector/models"
	"payment-connector/repository"
	"payment-connector/services"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// RetryPolicy decides whether a failed capture gets another attempt.
type RetryPolicy interface {
	ShouldRetry(ctx context.Context, chargeID int64) (bool, error)
}

// MetricsRecorder emits worker counters. Nil-safe via awsclient.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	IsEnabled() bool
}

// CaptureConsumer polls the capture queue and drives charges from
// capture-approved to captured. The queue delivers at least once, so the
// whole path is written to tolerate duplicates: the message is deleted
// only after the terminal transition commits, and a redelivered message
// for an already-captured charge is acknowledged as a no-op.
type CaptureConsumer struct {
	client       sqsAPI
	queueURL     string
	transitioner services.Transitioner
	retryPolicy  RetryPolicy
	registry     *gateway.Registry
	charges      repository.ChargeRepository
	metrics      MetricsRecorder
	retryDelay   time.Duration
	drainTimeout time.Duration
	waitTime     int32
	logger       *zap.Logger
}

func NewCaptureConsumer(
	cfg aws.Config,
	queueURL string,
	transitioner services.Transitioner,
	retryPolicy RetryPolicy,
	registry *gateway.Registry,
	charges repository.ChargeRepository,
	metrics MetricsRecorder,
	retryDelay time.Duration,
	logger *zap.Logger,
) *CaptureConsumer {
	return &CaptureConsumer{
		client:       sqs.NewFromConfig(cfg),
		queueURL:     queueURL,
		transitioner: transitioner,
		retryPolicy:  retryPolicy,
		registry:     registry,
		charges:      charges,
		metrics:      metrics,
		retryDelay:   retryDelay,
		drainTimeout: 30 * time.Second,
		waitTime:     5,
		logger:       logger,
	}
}

// Run polls until the context is cancelled. The batch being processed
// when cancellation arrives is allowed to finish; anything still in
// flight when the process dies is simply never acknowledged and comes
// back after the queue's visibility timeout.
func (c *CaptureConsumer) Run(ctx context.Context) {
	c.logger.Info("capture consumer started", zap.String("queue", c.queueURL))
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("capture consumer shutting down")
			return
		default:
			c.poll(ctx)
		}
	}
}

func (c *CaptureConsumer) poll(ctx context.Context) {
	output, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.waitTime,
		AttributeNames: []types.QueueAttributeName{
			types.QueueAttributeName(types.MessageSystemAttributeNameApproximateReceiveCount),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Transient queue faults must never kill the loop.
		c.logger.Error("capture queue receive error", zap.Error(err))
		time.Sleep(5 * time.Second)
		return
	}

	if len(output.Messages) == 0 {
		return
	}

	// The batch in flight finishes even when shutdown lands mid-message:
	// a cancelled context between the claim commit and the terminal
	// transition would strand the charge in its marker status. Detached
	// and bounded, so draining cannot hold shutdown up indefinitely.
	procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.drainTimeout)
	defer cancel()
	for _, msg := range output.Messages {
		c.processMessage(procCtx, msg)
	}
}

// processMessage handles one delivery end to end. A panic or error in one
// message is contained here so a poisoned message cannot block the batch.
func (c *CaptureConsumer) processMessage(ctx context.Context, msg types.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic while processing capture message, leaving for redelivery",
				zap.Any("panic", r))
		}
	}()

	if msg.Body == nil || *msg.Body == "" {
		c.logger.Error("empty capture message body, dropping")
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	var m models.CaptureMessage
	if err := json.Unmarshal([]byte(*msg.Body), &m); err != nil || m.ChargeID == "" {
		// Unparsable payloads can never succeed; delete to stop the
		// redelivery loop.
		c.logger.Error("unparsable capture message, dropping",
			zap.String("body", *msg.Body), zap.Error(err))
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	logger := c.logger.With(
		zap.String("charge_id", m.ChargeID),
		zap.String("receive_count", receiveCount(msg)),
	)

	charge, err := c.transitioner.LockForProcessing(ctx, m.ChargeID, services.OperationCapture)
	if err != nil {
		c.handleClaimFailure(ctx, msg, m.ChargeID, err, logger)
		return
	}

	connector, err := c.registry.Get(charge.PaymentProvider)
	if err != nil {
		logger.Error("no connector for charge provider, leaving for redelivery",
			zap.String("provider", charge.PaymentProvider), zap.Error(err))
		return
	}

	if _, err := connector.Capture(ctx, charge); err != nil {
		c.handleCaptureFailure(ctx, msg, charge, err, logger)
		return
	}

	// Gateway accepted the capture. Commit before acknowledging: a crash
	// between here and the delete redelivers the message, and the
	// duplicate path above turns that into a no-op.
	if err := c.transitioner.Apply(ctx, charge, models.StatusCaptureSubmitted); err != nil {
		logger.Error("failed to record capture submission, leaving for redelivery", zap.Error(err))
		return
	}
	if err := c.transitioner.Apply(ctx, charge, models.StatusCaptured); err != nil {
		logger.Error("failed to record capture completion, leaving for redelivery", zap.Error(err))
		return
	}

	c.deleteMessage(ctx, msg.ReceiptHandle)
	c.count(ctx, awsclient.MetricCaptureSucceeded, charge.PaymentProvider)
	logger.Info("capture completed")
}

// handleClaimFailure deals with a charge that could not be locked for
// capture. A charge that already completed capture means this delivery is
// a duplicate and is acknowledged; a claim marker seen again on a
// redelivery is recovered as a stale claim; anything else is left on the
// queue.
func (c *CaptureConsumer) handleClaimFailure(ctx context.Context, msg types.Message, chargeID string, claimErr error, logger *zap.Logger) {
	var inProgress *services.OperationInProgressError
	if errors.As(claimErr, &inProgress) {
		c.recoverStaleClaim(ctx, msg, chargeID, logger)
		return
	}

	var invalid *services.InvalidTransitionError
	if errors.As(claimErr, &invalid) {
		charge, err := c.charges.FindByExternalID(ctx, chargeID)
		if err == nil && charge.Status.IsCaptureSuccess() {
			logger.Info("duplicate capture message for completed charge, acknowledging",
				zap.String("status", string(charge.Status)))
			c.deleteMessage(ctx, msg.ReceiptHandle)
			c.count(ctx, awsclient.MetricCaptureDuplicate, charge.PaymentProvider)
			return
		}
		logger.Error("charge not in a capturable status, leaving for redelivery",
			zap.String("from", string(invalid.From)))
		return
	}

	if errors.Is(claimErr, repository.ErrConcurrentModification) {
		logger.Info("lost claim race, leaving for redelivery")
		return
	}

	if errors.Is(claimErr, repository.ErrNotFound) {
		// A charge id that was never persisted cannot start existing on a
		// later delivery; dropping mirrors the unparsable-body policy.
		logger.Error("capture message for unknown charge, dropping")
		c.deleteMessage(ctx, msg.ReceiptHandle)
		return
	}

	logger.Error("capture claim failed, leaving for redelivery", zap.Error(claimErr))
}

// recoverStaleClaim handles a redelivered message for a charge that still
// carries the CAPTURE_READY claim marker. The marker lives for one gateway
// round-trip, so seeing it again on a redelivery means the claiming worker
// most likely died between the claim commit and the terminal transition.
// Re-arming through CAPTURE_APPROVED_RETRY puts the charge back on the
// normal retry track; the optimistic lock means a worker that is in fact
// still processing wins the race and this write loses cleanly.
func (c *CaptureConsumer) recoverStaleClaim(ctx context.Context, msg types.Message, chargeID string, logger *zap.Logger) {
	charge, err := c.charges.FindByExternalID(ctx, chargeID)
	if err != nil {
		logger.Error("stale claim lookup failed, leaving for redelivery", zap.Error(err))
		return
	}
	if charge.Status != models.StatusCaptureReady {
		// Advanced since the claim check; the next delivery takes the
		// normal path.
		logger.Info("claim released since check, leaving for redelivery",
			zap.String("status", string(charge.Status)))
		return
	}

	retry, err := c.retryPolicy.ShouldRetry(ctx, charge.ID)
	if err != nil {
		logger.Error("retry decision failed, leaving for redelivery", zap.Error(err))
		return
	}
	if !retry {
		if err := c.transitioner.Apply(ctx, charge, models.StatusCaptureError); err != nil {
			logger.Error("failed to fail stale capture claim, leaving for redelivery", zap.Error(err))
			return
		}
		c.deleteMessage(ctx, msg.ReceiptHandle)
		c.count(ctx, awsclient.MetricCaptureFailed, charge.PaymentProvider)
		logger.Warn("stale capture claim terminally failed")
		return
	}

	err = c.transitioner.Apply(ctx, charge, models.StatusCaptureApprovedRetry)
	switch {
	case err == nil:
		c.delayRedelivery(ctx, msg.ReceiptHandle, logger)
		c.count(ctx, awsclient.MetricCaptureRetried, charge.PaymentProvider)
		logger.Warn("stale capture claim re-armed for retry")
	case errors.Is(err, repository.ErrConcurrentModification):
		logger.Info("claim still actively held, leaving for redelivery")
	default:
		logger.Error("failed to re-arm stale capture claim, leaving for redelivery", zap.Error(err))
	}
}

// handleCaptureFailure applies the retry policy to a gateway failure.
func (c *CaptureConsumer) handleCaptureFailure(ctx context.Context, msg types.Message, charge *models.Charge, captureErr error, logger *zap.Logger) {
	logger.Warn("gateway capture failed", zap.Error(captureErr))

	if gateway.IsRetryable(captureErr) {
		retry, err := c.retryPolicy.ShouldRetry(ctx, charge.ID)
		if err != nil {
			logger.Error("retry decision failed, leaving for redelivery", zap.Error(err))
			return
		}
		if retry {
			// Recording the retry event and delaying redelivery re-arms
			// the attempt without losing the durable attempt count.
			if err := c.transitioner.Apply(ctx, charge, models.StatusCaptureApprovedRetry); err != nil {
				logger.Error("failed to record capture retry, leaving for redelivery", zap.Error(err))
				return
			}
			c.delayRedelivery(ctx, msg.ReceiptHandle, logger)
			c.count(ctx, awsclient.MetricCaptureRetried, charge.PaymentProvider)
			return
		}
	}

	// Declined, or retries exhausted: a terminally failed capture must
	// not be retried forever.
	if err := c.transitioner.Apply(ctx, charge, models.StatusCaptureError); err != nil {
		logger.Error("failed to record capture error, leaving for redelivery", zap.Error(err))
		return
	}
	c.deleteMessage(ctx, msg.ReceiptHandle)
	c.count(ctx, awsclient.MetricCaptureFailed, charge.PaymentProvider)
	logger.Warn("capture terminally failed")
}

func (c *CaptureConsumer) delayRedelivery(ctx context.Context, receiptHandle *string, logger *zap.Logger) {
	_, err := c.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.queueURL),
		ReceiptHandle:     receiptHandle,
		VisibilityTimeout: int32(c.retryDelay / time.Second),
	})
	if err != nil {
		// The message still comes back after the default visibility
		// timeout, just sooner than intended.
		logger.Warn("failed to delay capture redelivery", zap.Error(err))
	}
}

func (c *CaptureConsumer) deleteMessage(ctx context.Context, receiptHandle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		c.logger.Error("failed to delete capture message", zap.Error(err))
	}
}

func (c *CaptureConsumer) count(ctx context.Context, metric, provider string) {
	if c.metrics == nil || !c.metrics.IsEnabled() {
		return
	}
	go func() {
		mctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.metrics.RecordCount(mctx, metric, map[string]string{"Provider": provider})
	}()
}
