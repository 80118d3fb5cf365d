package services

import (
	"context"

	"payment-connector/models"
	"payment-connector/repository"
)

// CaptureRetryPolicy decides whether a failed capture attempt should be
// retried. The ceiling is enforced against the durable count of
// CAPTURE_APPROVED_RETRY history events, not the queue's redelivery
// counter: the broker's counter resets under redrive and cannot be the
// source of truth for a financial retry limit.
type CaptureRetryPolicy struct {
	charges     repository.ChargeRepository
	maxAttempts int64
}

func NewCaptureRetryPolicy(charges repository.ChargeRepository, maxAttempts int64) *CaptureRetryPolicy {
	return &CaptureRetryPolicy{charges: charges, maxAttempts: maxAttempts}
}

// ShouldRetry reports whether the charge still has retry budget left.
func (p *CaptureRetryPolicy) ShouldRetry(ctx context.Context, chargeID int64) (bool, error) {
	count, err := p.charges.CountEvents(ctx, chargeID, models.StatusCaptureApprovedRetry)
	if err != nil {
		return false, err
	}
	return count < p.maxAttempts, nil
}
