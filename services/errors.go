package services

import (
	"fmt"

	"payment-connector/models"
)

// Operation names a gateway round-trip a worker can claim a charge for.
type Operation string

const (
	OperationCapture       Operation = "capture"
	OperationAuthorisation Operation = "authorisation"
)

// InvalidTransitionError reports an attempted move that is not in the
// transition table. Callers decide whether it is a benign duplicate or a
// genuine fault; it is never surfaced to an end user.
type InvalidTransitionError struct {
	ChargeID string
	From     models.ChargeStatus
	To       models.ChargeStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("charge %s: illegal status transition %s -> %s", e.ChargeID, e.From, e.To)
}

// InvalidRefundTransitionError is the refund-table counterpart.
type InvalidRefundTransitionError struct {
	RefundID string
	From     models.RefundStatus
	To       models.RefundStatus
}

func (e *InvalidRefundTransitionError) Error() string {
	return fmt.Sprintf("refund %s: illegal status transition %s -> %s", e.RefundID, e.From, e.To)
}

// OperationInProgressError signals that another worker already claimed the
// charge for the same operation. A legitimate concurrent claim, not a
// fault: callers retry later instead of blocking.
type OperationInProgressError struct {
	ChargeID string
	Op       Operation
}

func (e *OperationInProgressError) Error() string {
	return fmt.Sprintf("charge %s: %s already in progress", e.ChargeID, e.Op)
}
