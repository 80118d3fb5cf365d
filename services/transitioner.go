package services

import (
	"context"
	"time"

	"payment-connector/models"
	"payment-connector/repository"

	"go.uber.org/zap"
)

// EventPublisher emits domain events after a transition commits.
// Emission is best-effort: a publish failure never rolls back the
// transition that triggered it.
type EventPublisher interface {
	PublishChargeStatusChanged(ctx context.Context, event models.ChargeStatusChangedEvent) error
	PublishRefundStatusChanged(ctx context.Context, event models.RefundStatusChangedEvent) error
}

// Transitioner is the single choke-point through which every charge and
// refund status change passes. No other code path writes a status.
type Transitioner interface {
	Transition(ctx context.Context, chargeExternalID string, target models.ChargeStatus) (*models.Charge, error)
	Apply(ctx context.Context, charge *models.Charge, target models.ChargeStatus) error
	LockForProcessing(ctx context.Context, chargeExternalID string, op Operation) (*models.Charge, error)
	TransitionRefund(ctx context.Context, refund *models.Refund, target models.RefundStatus) error
}

// operationMarker maps an operation type to its provider-agnostic
// "in progress" status.
var operationMarker = map[Operation]models.ChargeStatus{
	OperationCapture:       models.StatusCaptureReady,
	OperationAuthorisation: models.StatusAuthorisationReady,
}

type LifecycleTransitioner struct {
	charges     repository.ChargeRepository
	refunds     repository.RefundRepository
	chargeTable *models.TransitionTable[models.ChargeStatus]
	refundTable *models.TransitionTable[models.RefundStatus]
	publisher   EventPublisher
	logger      *zap.Logger
}

func NewLifecycleTransitioner(
	charges repository.ChargeRepository,
	refunds repository.RefundRepository,
	publisher EventPublisher,
	logger *zap.Logger,
) *LifecycleTransitioner {
	return &LifecycleTransitioner{
		charges:     charges,
		refunds:     refunds,
		chargeTable: models.NewChargeTransitionTable(),
		refundTable: models.NewRefundTransitionTable(),
		publisher:   publisher,
		logger:      logger,
	}
}

// Transition loads the charge and applies the target status.
func (t *LifecycleTransitioner) Transition(ctx context.Context, chargeExternalID string, target models.ChargeStatus) (*models.Charge, error) {
	charge, err := t.charges.FindByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	if err := t.Apply(ctx, charge, target); err != nil {
		return nil, err
	}
	return charge, nil
}

// Apply validates the move against the transition table and commits it
// with a compare-and-swap guarded by the charge's version. The history
// event is written in the same transaction; the domain event is offered
// to the publisher only after the commit succeeds.
func (t *LifecycleTransitioner) Apply(ctx context.Context, charge *models.Charge, target models.ChargeStatus) error {
	from := charge.Status
	if !t.chargeTable.Valid(from, target) {
		return &InvalidTransitionError{ChargeID: charge.ExternalID, From: from, To: target}
	}
	if err := t.charges.UpdateStatus(ctx, charge, target); err != nil {
		return err
	}

	t.logger.Info("charge status changed",
		zap.String("charge_id", charge.ExternalID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	t.emitChargeEvent(charge, from, target)
	return nil
}

// LockForProcessing claims exclusive ownership of a charge for the
// duration of a gateway round-trip by moving it into the operation's
// marker status. A charge already in that status belongs to another
// worker; the claim fails fast instead of blocking.
func (t *LifecycleTransitioner) LockForProcessing(ctx context.Context, chargeExternalID string, op Operation) (*models.Charge, error) {
	marker, ok := operationMarker[op]
	if !ok {
		return nil, &InvalidTransitionError{ChargeID: chargeExternalID, To: marker}
	}
	charge, err := t.charges.FindByExternalID(ctx, chargeExternalID)
	if err != nil {
		return nil, err
	}
	if charge.Status == marker {
		return nil, &OperationInProgressError{ChargeID: chargeExternalID, Op: op}
	}
	if err := t.Apply(ctx, charge, marker); err != nil {
		return nil, err
	}
	return charge, nil
}

// TransitionRefund applies a refund status change under the refund table
// with the same optimistic-lock discipline.
func (t *LifecycleTransitioner) TransitionRefund(ctx context.Context, refund *models.Refund, target models.RefundStatus) error {
	from := refund.Status
	if !t.refundTable.Valid(from, target) {
		return &InvalidRefundTransitionError{RefundID: refund.ExternalID, From: from, To: target}
	}
	if err := t.refunds.UpdateStatus(ctx, refund, target); err != nil {
		return err
	}

	t.logger.Info("refund status changed",
		zap.String("refund_id", refund.ExternalID),
		zap.String("from", string(from)),
		zap.String("to", string(target)),
	)
	t.emitRefundEvent(refund, from, target)
	return nil
}

func (t *LifecycleTransitioner) emitChargeEvent(charge *models.Charge, from, to models.ChargeStatus) {
	if t.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := t.publisher.PublishChargeStatusChanged(ctx, models.ChargeStatusChangedEvent{
		EventType:  models.EventTypeChargeStatusChanged,
		ChargeID:   charge.ExternalID,
		Provider:   charge.PaymentProvider,
		FromStatus: string(from),
		ToStatus:   string(to),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.logger.Warn("domain event publish failed",
			zap.String("charge_id", charge.ExternalID),
			zap.Error(err),
		)
	}
}

func (t *LifecycleTransitioner) emitRefundEvent(refund *models.Refund, from, to models.RefundStatus) {
	if t.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := t.publisher.PublishRefundStatusChanged(ctx, models.RefundStatusChangedEvent{
		EventType:  models.EventTypeRefundStatusChanged,
		RefundID:   refund.ExternalID,
		FromStatus: string(from),
		ToStatus:   string(to),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.logger.Warn("domain event publish failed",
			zap.String("refund_id", refund.ExternalID),
			zap.Error(err),
		)
	}
}
